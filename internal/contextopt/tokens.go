package contextopt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 估算文本的 token 数量。
// 首选 tiktoken 的 cl100k_base 编码器；当编码器初始化失败时
// （例如离线环境无法加载 BPE 词表），退化为按 4 字符 1 token 估算。
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter 创建一个 token 计数器。编码器延迟到首次使用时初始化。
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count 返回文本的估算 token 数。空文本返回 0。
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})

	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	// 估算下界：平均每 4 个字符约 1 个 token。
	n := (len(text) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
