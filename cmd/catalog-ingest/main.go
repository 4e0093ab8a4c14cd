// Command catalog-ingest bulk-loads products from gzip-compressed JSON Lines
// catalog shards.
//
// Every shard is scanned twice. Pass 1 builds a bloom filter of SKUs per
// shard. Pass 2 marks SKUs that also appear in another shard; such SKUs are
// ambiguous and skipped. The remaining products are upserted by SKU in
// batches.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

type options struct {
	pattern   string
	capacity  uint
	batchSize int
}

func main() {
	var (
		opts        options
		databaseURL string
		dryRun      bool
	)
	flag.StringVar(&opts.pattern, "files", "data/catalog*.jsonl.gz", "glob of gzip-compressed JSON Lines catalog shards")
	flag.UintVar(&opts.capacity, "capacity", 1_000_000, "expected SKUs per shard, sizes the bloom filters")
	flag.IntVar(&opts.batchSize, "batch-size", 500, "products per upsert batch")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "scan and report without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts, databaseURL, dryRun); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, opts options, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "expand file pattern")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", opts.pattern)
	}
	if len(files) > bits.UintSize {
		return errors.Errorf("at most %d shards are supported, got %d", bits.UintSize, len(files))
	}
	sort.Strings(files)

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildBloomFilters(ctx, files, opts.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding SKUs shared between shards")
	conflicts, err := findConflicts(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	for _, sku := range conflicts.sorted() {
		slog.Warn("skipping SKU present in several shards", slog.String("sku", sku))
	}

	if dryRun {
		slog.Info("dry run: nothing written", slog.Int("conflicts", len(conflicts)))
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	for _, f := range files {
		written, err := writeShard(ctx, f, conflicts, opts.batchSize, repo.UpsertBySKU)
		if err != nil {
			return errors.Wrapf(err, "write %s", f)
		}
		slog.Info("shard written", slog.String("file", f), slog.Int("products", written))
	}
	return nil
}

// record is one catalog line.
type record struct {
	SKU          string
	Name         string
	Description  string
	Manufacturer string
	Price        decimal.Decimal
	Category     product.Category
	Stock        int
}

func (r record) product() product.Product {
	return product.Product{
		SKU:          r.SKU,
		Name:         r.Name,
		Description:  r.Description,
		Manufacturer: r.Manufacturer,
		Price:        r.Price,
		Category:     r.Category,
		Stock:        r.Stock,
		Active:       true,
	}
}

func (r record) validate() error {
	return product.CreateRequest{
		SKU:      r.SKU,
		Name:     r.Name,
		Price:    r.Price,
		Category: r.Category,
		Stock:    r.Stock,
	}.Validate()
}

// parseRecord decodes a catalog line such as
//
//	{"sku":"IPH15-128","name":"iPhone 15","price":"999.99","category":"electronics","stock":50}
func parseRecord(line []byte) (record, error) {
	var r record
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "sku":
			r.SKU, err = d.Str()
		case "name":
			r.Name, err = d.Str()
		case "description":
			r.Description, err = d.Str()
		case "manufacturer":
			r.Manufacturer, err = d.Str()
		case "price":
			r.Price, err = decodePrice(d)
		case "category":
			var raw string
			if raw, err = d.Str(); err == nil {
				r.Category, err = product.ParseCategory(raw)
			}
		case "stock":
			r.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return record{}, errors.Wrap(err, "decode")
	}
	if err := r.validate(); err != nil {
		return record{}, err
	}
	return r, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	} else {
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}

// streamShard calls fn for every valid record of a gzip-compressed JSON Lines
// file. Malformed lines are logged and skipped.
func streamShard(ctx context.Context, path string, fn func(record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		r, err := parseRecord(scanner.Bytes())
		if err != nil {
			slog.Warn("skipping malformed line",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// buildBloomFilters creates one SKU filter per shard, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			count := 0
			if err := streamShard(ctx, path, func(r record) error {
				filter.AddString(r.SKU)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Int("skus", count))
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Int("total_skus", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// skuSet is a set of SKUs.
type skuSet map[string]struct{}

func (s skuSet) has(sku string) bool {
	_, ok := s[sku]
	return ok
}

func (s skuSet) sorted() []string {
	out := make([]string, 0, len(s))
	for sku := range s {
		out = append(out, sku)
	}
	sort.Strings(out)
	return out
}

// findConflicts returns the SKUs present in two or more shards. A SKU counts
// only when each of those shards' candidate scans flagged it, so a single
// bloom false positive is not enough.
func findConflicts(ctx context.Context, files []string, filters []*bloom.BloomFilter) (skuSet, error) {
	candidates := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			if err := streamShard(ctx, path, func(r record) error {
				for j, f := range filters {
					if j != i && f.TestString(r.SKU) {
						found[r.SKU] |= fileBit
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for conflicts", i+1)
			}
			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(found)))
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, found := range candidates {
		for sku, mask := range found {
			merged[sku] |= mask
		}
	}
	out := make(skuSet)
	for sku, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			out[sku] = struct{}{}
		}
	}
	return out, nil
}

// writeShard upserts the non-conflicting products of one shard in batches.
func writeShard(
	ctx context.Context,
	path string,
	conflicts skuSet,
	batchSize int,
	upsert func(context.Context, []product.Product) error,
) (int, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	var (
		batch   = make([]product.Product, 0, batchSize)
		written int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := upsert(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}
	err := streamShard(ctx, path, func(r record) error {
		if conflicts.has(r.SKU) {
			return nil
		}
		batch = append(batch, r.product())
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return written, err
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}
