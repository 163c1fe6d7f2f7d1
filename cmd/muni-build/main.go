// 自治体编码表生成工具：拉取地方公共团体名录，写出 muniCd → 都道府県+市区町村 的扁平 JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"forest-api/internal/address"
	"forest-api/internal/logger"
	"forest-api/internal/utils"

	"github.com/joho/godotenv"
)

const defaultSourceURL = "https://code4fukui.github.io/localgovjp/localgovjp.json"

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()

	src := utils.EnvString("LOCALGOV_URL", defaultSourceURL)
	out := utils.EnvString("MUNICIPALITY_MAP_PATH", filepath.Join("data", "municipality-map.json"))
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	entries, err := fetchLocalGov(ctx, src)
	if err != nil {
		l.Error("localgov_fetch_error", "url", src, "err", err)
		os.Exit(1)
	}
	table := address.BuildMunicipalityTable(entries)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		l.Error("mkdir_error", "err", err)
		os.Exit(1)
	}
	if err := table.Save(out); err != nil {
		l.Error("municipality_map_save_error", "path", out, "err", err)
		os.Exit(1)
	}
	l.Info("municipality_map_written", "path", out, "entries", len(entries), "codes", table.Len())
}

func fetchLocalGov(ctx context.Context, url string) ([]address.LocalGov, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status %d", resp.StatusCode)
	}
	var entries []address.LocalGov
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode localgov list: %w", err)
	}
	return entries, nil
}
