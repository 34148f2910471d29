// Package snowflake 行主键生成：雪花算法与顺序序列
package snowflake

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// 2023-01-01 00:00:00 UTC
	epoch int64 = 1672531200000

	nodeBits     = 10
	sequenceBits = 12

	maxNode     = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

var ErrClockBackwards = errors.New("snowflake: clock moved backwards")

// IGenerator 行存储使用的 int64 主键生成器
type IGenerator interface {
	NextID() (int64, error)
}

// Generator 雪花 ID：41 位毫秒时间 + 10 位节点 + 12 位序列
type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	last     int64
	now      func() int64
}

// NewGenerator 创建生成器，node 取值 [0, 1023]
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > maxNode {
		return nil, errors.New("snowflake: node out of range")
	}
	return &Generator{
		node: node,
		last: -1,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.last {
		return 0, ErrClockBackwards
	}
	if now == g.last {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.last {
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.last = now

	return (now-epoch)<<timeShift | g.node<<nodeShift | g.sequence, nil
}

// Parts 拆解 ID
func Parts(id int64) (ms int64, node int64, seq int64) {
	return (id >> timeShift) + epoch, (id >> nodeShift) & maxNode, id & maxSequence
}

// Sequence 从 1 开始递增的序列，测试中用来得到可预期的主键
type Sequence struct {
	n atomic.Int64
}

func NewSequence() *Sequence { return &Sequence{} }

func (s *Sequence) NextID() (int64, error) {
	return s.n.Add(1), nil
}

var defaultGenerator, _ = NewGenerator(1)

// Default 进程级默认生成器
func Default() IGenerator {
	return defaultGenerator
}
