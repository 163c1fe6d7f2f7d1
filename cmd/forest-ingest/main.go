// 数据集工具：CSV / GeoJSON / JSON 互转、导入 PostgreSQL、离线补全地址
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"forest-api/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	fillAddress bool
	muniMapPath string
	gsiEndpoint string
	gsiRPS      float64
	batchSize   int
)

var rootCmd = &cobra.Command{
	Use:   "forest-ingest",
	Short: "Build and load the forest dataset",
	Long: `forest-ingest prepares the dataset served by the forest API.

Input format is chosen by file extension: .json (array of
{id,name,latitude,longitude,address}), .csv (header row, columns
id/name/latitude/longitude/address at 0/2/3/4/9) or .geojson
(FeatureCollection; polygons are reduced to the mean of the outer ring).

Examples:
  # CSV to JSON, resolving missing addresses through GSI
  forest-ingest convert forests.csv data/forests.json --fill-address

  # Load a GeoJSON file into Postgres (PG_* env vars)
  forest-ingest import kokudo.geojson

  # Resolve addresses for rows already in Postgres
  forest-ingest fill-address --limit 5000`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("data", "env", ".env"))
		logger.Setup()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&muniMapPath, "muni-map", filepath.Join("data", "municipality-map.json"), "municipality code table (JSON object code->name)")
	pf.StringVar(&gsiEndpoint, "gsi-endpoint", "", "reverse geocoder endpoint (default GSI LonLatToAddress)")
	pf.Float64Var(&gsiRPS, "gsi-rps", 10, "reverse geocoder requests per second (<=0 disables limiting)")
	pf.IntVar(&batchSize, "batch", 10, "concurrent reverse geocoder requests per batch")

	rootCmd.AddCommand(convertCmd, importCmd, fillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
