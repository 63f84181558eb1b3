package gonka

import (
	"errors"
	"strings"
)

const bech32Alphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32Generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

// encodeAddress encodes an 8-bit payload as a bech32 string with the given
// human-readable prefix.
func encodeAddress(hrp string, payload []byte) (string, error) {
	data, err := regroup(payload, 8, 5, true)
	if err != nil {
		return "", err
	}

	sum := bech32Checksum(hrp, data)

	var sb strings.Builder
	sb.Grow(len(hrp) + 1 + len(data) + len(sum))
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, v := range append(data, sum...) {
		sb.WriteByte(bech32Alphabet[v])
	}
	return sb.String(), nil
}

func bech32Checksum(hrp string, data []byte) []byte {
	values := make([]byte, 0, len(hrp)*2+1+len(data)+6)
	for i := 0; i < len(hrp); i++ {
		values = append(values, hrp[i]>>5)
	}
	values = append(values, 0)
	for i := 0; i < len(hrp); i++ {
		values = append(values, hrp[i]&31)
	}
	values = append(values, data...)
	values = append(values, 0, 0, 0, 0, 0, 0)

	mod := polymod(values) ^ 1
	sum := make([]byte, 6)
	for i := range sum {
		sum[i] = byte(mod>>(5*(5-i))) & 31
	}
	return sum
}

func polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i, g := range bech32Generator {
			if (top>>i)&1 == 1 {
				chk ^= g
			}
		}
	}
	return chk
}

// regroup repacks data from groups of from bits into groups of to bits.
func regroup(data []byte, from, to uint, pad bool) ([]byte, error) {
	var (
		acc  uint32
		bits uint
		out  = make([]byte, 0, len(data)*int(from)/int(to)+1)
	)
	maxv := uint32(1)<<to - 1

	for _, b := range data {
		if uint32(b)>>from != 0 {
			return nil, errors.New("bech32: value out of range")
		}
		acc = acc<<from | uint32(b)
		bits += from
		for bits >= to {
			bits -= to
			out = append(out, byte(acc>>bits&maxv))
		}
	}

	switch {
	case pad:
		if bits > 0 {
			out = append(out, byte(acc<<(to-bits)&maxv))
		}
	case bits >= from:
		return nil, errors.New("bech32: excess padding")
	case acc<<(to-bits)&maxv != 0:
		return nil, errors.New("bech32: non-zero padding")
	}
	return out, nil
}
