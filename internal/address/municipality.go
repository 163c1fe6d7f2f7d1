package address

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// 文档注释：自治体编码表（5 位 muniCd → “都道府県+市区町村”）
// 约束：加载后只读；未知编码返回空字符串。
type MunicipalityTable struct {
	m map[string]string
}

func NewMunicipalityTable(m map[string]string) *MunicipalityTable {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &MunicipalityTable{m: cp}
}

// LoadMunicipalityTable：读取扁平 JSON 对象 {code: name}
func LoadMunicipalityTable(path string) (*MunicipalityTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode municipality map %s: %w", path, err)
	}
	return &MunicipalityTable{m: m}, nil
}

func (t *MunicipalityTable) Name(code string) string {
	if t == nil {
		return ""
	}
	return t.m[code]
}

func (t *MunicipalityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

// Save：写出扁平 JSON，供服务启动时加载
func (t *MunicipalityTable) Save(path string) error {
	b, err := json.Marshal(t.m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LocalGov：地方公共团体名录条目（localgovjp 格式）
type LocalGov struct {
	LGCode string `json:"lgcode"`
	Pref   string `json:"pref"`
	City   string `json:"city"`
}

// 文档注释：由地方公共团体名录生成编码表
// 背景：反地理编码接口返回的 muniCd 即 lgcode 前 5 位；名称为都道府県名 + 市区町村名（去除空白）。
// 约束：lgcode 不足 5 位或名称为空的条目跳过；重复编码后者覆盖前者。
func BuildMunicipalityTable(entries []LocalGov) *MunicipalityTable {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		if len(e.LGCode) < 5 {
			continue
		}
		name := e.Pref + stripSpace(e.City)
		if name == "" {
			continue
		}
		m[e.LGCode[:5]] = name
	}
	return &MunicipalityTable{m: m}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
