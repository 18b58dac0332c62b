// Package skills 提供技能规则表的加载与热更新
//
// 规则表由外部产出（YAML），服务端只读。Reload 以整表替换的方式
// 原子生效，单次派发过程中看到的是一致的快照。
package skills

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition 单个技能定义
type Definition struct {
	ID           uint32  `yaml:"id"`
	Name         string  `yaml:"name"`
	CooldownMs   uint32  `yaml:"cooldown_ms"`
	ManaCost     uint32  `yaml:"mana_cost"`
	CastTimeMs   uint32  `yaml:"cast_time_ms"`
	Range        float32 `yaml:"range"`
	AOE          bool    `yaml:"aoe"`
	BaseDamage   uint32  `yaml:"base_damage"`
	BaseHealing  uint32  `yaml:"base_healing"`
	LevelScaling float32 `yaml:"level_scaling"`
}

// Cooldown 返回冷却时长
func (d *Definition) Cooldown() time.Duration {
	return time.Duration(d.CooldownMs) * time.Millisecond
}

// ScaledDamage 按等级缩放后的伤害
func (d *Definition) ScaledDamage(level uint32) uint32 {
	if d.BaseDamage == 0 {
		return 0
	}
	return d.BaseDamage + uint32(float32(level-1)*d.LevelScaling*float32(d.BaseDamage))
}

// ScaledHealing 按等级缩放后的治疗量
func (d *Definition) ScaledHealing(level uint32) uint32 {
	if d.BaseHealing == 0 {
		return 0
	}
	return d.BaseHealing + uint32(float32(level-1)*d.LevelScaling*float32(d.BaseHealing))
}

// Table 技能规则表快照（只读）
type Table struct {
	byID map[uint32]*Definition
}

// Get 按 id 查询技能定义，不存在返回 nil
func (t *Table) Get(id uint32) *Definition {
	return t.byID[id]
}

// Len 返回技能数量
func (t *Table) Len() int {
	return len(t.byID)
}

// rulesFile YAML 文件结构
type rulesFile struct {
	Skills []*Definition `yaml:"skills"`
}

// Loader 技能规则加载器
type Loader struct {
	path    string
	current atomic.Pointer[Table]
}

// NewLoader 创建加载器并完成首次加载
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Snapshot 返回当前规则表快照
// 调用方在一次派发内持有同一个快照，热更新不影响进行中的调用
func (l *Loader) Snapshot() *Table {
	return l.current.Load()
}

// Reload 重新加载规则表并原子替换
func (l *Loader) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read skill rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse skill rules: %w", err)
	}

	table := &Table{byID: make(map[uint32]*Definition, len(f.Skills))}
	for _, def := range f.Skills {
		if _, ok := table.byID[def.ID]; ok {
			return fmt.Errorf("duplicate skill id %d", def.ID)
		}
		table.byID[def.ID] = def
	}

	l.current.Store(table)
	return nil
}

// NewStaticTable 从定义列表直接构建规则表（测试用）
func NewStaticTable(defs ...*Definition) *Table {
	table := &Table{byID: make(map[uint32]*Definition, len(defs))}
	for _, def := range defs {
		table.byID[def.ID] = def
	}
	return table
}
