package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tonkeeper/tongo/ton"
	"golang.org/x/crypto/sha3"
)

// AddressCodec 校验并规范化链上地址，同一账户的不同写法映射为同一个持有人
type AddressCodec interface {
	Normalize(addr string) (string, error)
}

// NewAddressCodec 按配置的地址格式（raw、evm、ton）返回编解码器
func NewAddressCodec(format string) (AddressCodec, error) {
	switch format {
	case "", "raw":
		return RawCodec{}, nil
	case "evm":
		return EVMCodec{}, nil
	case "ton":
		return TONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown address format %q", format)
	}
}

// RawCodec 接受任意非空地址，只去掉首尾空白
type RawCodec struct{}

func (RawCodec) Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	return addr, nil
}

// EVMCodec 校验 20 字节十六进制地址，返回 EIP-55 校验和格式
type EVMCodec struct{}

func (EVMCodec) Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", fmt.Errorf("evm address %q: missing 0x prefix", addr)
	}
	body := addr[2:]
	if len(body) != 40 {
		return "", fmt.Errorf("evm address %q: want 40 hex chars, got %d", addr, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("evm address %q: %w", addr, err)
	}
	return checksumEVM(strings.ToLower(body)), nil
}

// checksumEVM 对小写十六进制地址做 EIP-55 大小写编码
func checksumEVM(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			nibble := digest[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c -= 'a' - 'A'
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// TONCodec 接受 raw（0:...）与用户友好格式（EQ.../UQ...）的 TON 地址，统一返回 raw 格式
type TONCodec struct{}

func (TONCodec) Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return "", fmt.Errorf("ton address %q: %w", addr, err)
	}
	return acc.String(), nil
}
