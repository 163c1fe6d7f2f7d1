package main

import (
	"context"
	"fmt"
	"time"

	"forest-api/internal/address"
	"forest-api/internal/dataset"
	"forest-api/internal/logger"
	"forest-api/internal/migrate"
	"forest-api/internal/search"
	"forest-api/internal/store"
	"forest-api/internal/utils"

	"github.com/spf13/cobra"
)

// progressChunk 地址补全时每段的记录数（每段结束输出一次进度）
const progressChunk = 500

var fillLimit int

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out.json>",
	Short: "Convert a CSV/GeoJSON/JSON dataset to the JSON served by the API",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := readDataset(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if fillAddress {
			r, err := newResolver()
			if err != nil {
				return err
			}
			recs = fillAddresses(cmd.Context(), r, recs, nil)
		}
		if err := dataset.WriteJSON(args[1], recs); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		fmt.Printf("wrote %d records to %s\n", len(recs), args[1])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <in>",
	Short: "Upsert a dataset file into the _forest_records table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		recs, err := readDataset(ctx, args[0])
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if fillAddress {
			r, err := newResolver()
			if err != nil {
				return err
			}
			recs = fillAddresses(ctx, r, recs, nil)
		}
		n, err := st.ImportRecords(ctx, recs)
		if err != nil {
			return fmt.Errorf("import after %d rows: %w", n, err)
		}
		fmt.Printf("imported %d records\n", n)
		return nil
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill-address",
	Short: "Resolve and store addresses for database rows that lack one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		recs, err := st.MissingAddress(ctx, fillLimit)
		if err != nil {
			return err
		}
		r, err := newResolver()
		if err != nil {
			return err
		}
		updated := 0
		fillAddresses(ctx, r, recs, func(id, addr string) {
			if err := st.UpdateAddress(ctx, id, addr); err != nil {
				logger.L().Error("address_update_error", "id", id, "err", err)
				return
			}
			updated++
		})
		fmt.Printf("updated %d of %d records\n", updated, len(recs))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{convertCmd, importCmd} {
		c.Flags().BoolVar(&fillAddress, "fill-address", false, "resolve missing addresses before writing")
	}
	fillCmd.Flags().IntVar(&fillLimit, "limit", 1000, "maximum rows to process")
}

func readDataset(ctx context.Context, path string) ([]dataset.Record, error) {
	src, err := dataset.SourceFromPath(path)
	if err != nil {
		return nil, err
	}
	recs, err := dataset.NewStore(src).Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w: no usable records", path, dataset.ErrDataUnavailable)
	}
	return recs, nil
}

func openStore(ctx context.Context) (*store.Store, error) {
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return store.AttachDB(db), nil
}

func newResolver() (*address.Resolver, error) {
	table, err := address.LoadMunicipalityTable(muniMapPath)
	if err != nil {
		return nil, fmt.Errorf("municipality map: %w (run muni-build first)", err)
	}
	g := address.NewGSIClient(gsiEndpoint, address.WithRateLimit(gsiRPS))
	return address.NewResolver(g, table, nil, batchSize), nil
}

// 文档注释：补全缺失地址
// 背景：按段调用 ResolveMatches 以便输出进度；onResolved 在每个新解析出的地址上回调。
// 返回：新的记录切片，原切片不修改。
func fillAddresses(ctx context.Context, r *address.Resolver, recs []dataset.Record, onResolved func(id, addr string)) []dataset.Record {
	out := append([]dataset.Record(nil), recs...)
	idx := make(map[string]int, len(out))
	var pending []search.Match
	for i, rec := range out {
		idx[rec.ID] = i
		if rec.Address == "" {
			pending = append(pending, search.Match{ID: rec.ID, Name: rec.Name, Coord: rec.Coord})
		}
	}
	t0 := time.Now()
	resolved := 0
	for start := 0; start < len(pending); start += progressChunk {
		if ctx.Err() != nil {
			break
		}
		end := start + progressChunk
		if end > len(pending) {
			end = len(pending)
		}
		for id, addr := range r.ResolveMatches(ctx, pending[start:end]) {
			out[idx[id]].Address = addr
			resolved++
			if onResolved != nil {
				onResolved(id, addr)
			}
		}
		logger.L().Info("address_fill_progress", "done", end, "pending", len(pending), "resolved", resolved, "elapsed_s", int(time.Since(t0).Seconds()))
	}
	return out
}
