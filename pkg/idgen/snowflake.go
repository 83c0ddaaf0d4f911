package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// 雪花算法编号生成器
// ============================================================================
//
// 销售单号、收据号要求全局唯一、趋势递增，并且不暴露业务量。
// 底层使用 bwmarrin/snowflake：41 位时间戳 + 10 位节点 + 12 位序列号。
//
// ============================================================================

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init 初始化默认节点，nodeID 取值 0-1023
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("init snowflake node %d: %w", nodeID, err)
	}
	node = n
	return nil
}

// NextID 生成下一个 ID，未初始化时使用节点 1
func NextID() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}

// GenerateSaleNo 生成销售单号
// 格式：VTA + 年月日时分秒 + 雪花ID后8位，例如 VTA2024011514305212345678
func GenerateSaleNo() string {
	return generate("VTA")
}

// GenerateReceiptNo 生成付款收据号，同一次付款拆分出的流水共用
func GenerateReceiptNo() string {
	return generate("ABN")
}

func generate(prefix string) string {
	id := NextID()
	timestamp := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("%s%s%08d", prefix, timestamp, id%100000000)
}
