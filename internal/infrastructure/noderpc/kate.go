package noderpc

import (
	"context"
	"encoding/json"
	"fmt"

	"availsdk/internal/domain"
)

// ByteList decodes a byte vector serialized either as a JSON number array or a hex string.
type ByteList []byte

func (b *ByteList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		decoded, err := domain.DecodeHexData(text)
		if err != nil {
			return err
		}
		*b = decoded
		return nil
	}
	var numbers []uint16
	if err := json.Unmarshal(data, &numbers); err != nil {
		return fmt.Errorf("decode byte list: %w", err)
	}
	out := make([]byte, len(numbers))
	for i, n := range numbers {
		if n > 0xff {
			return fmt.Errorf("byte list value %d out of range", n)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

func (c *Client) BlockLength(ctx context.Context, at *domain.Hash) (domain.BlockLength, error) {
	var length domain.BlockLength
	err := c.call(ctx, "kate_blockLength", atParam(nil, at), &length)
	return length, err
}

// QueryProof returns the kate proof for cells. At most domain.MaxCells may be requested.
func (c *Client) QueryProof(ctx context.Context, cells []domain.Cell, at *domain.Hash) ([]byte, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("at least one cell is required")
	}
	if len(cells) > domain.MaxCells {
		return nil, fmt.Errorf("too many cells: %d > %d", len(cells), domain.MaxCells)
	}
	var proof ByteList
	if err := c.call(ctx, "kate_queryProof", atParam([]any{cells}, at), &proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// QueryDataProof returns the merkle proof of the data submission at txIndex.
func (c *Client) QueryDataProof(ctx context.Context, txIndex uint32, at *domain.Hash) (domain.DataProof, error) {
	var proof domain.DataProof
	err := c.call(ctx, "kate_queryDataProof", atParam([]any{txIndex}, at), &proof)
	return proof, err
}

// QueryRows returns the extended matrix rows; rows the node cannot serve are nil.
func (c *Client) QueryRows(ctx context.Context, rows []uint32, at *domain.Hash) ([][]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("at least one row is required")
	}
	return c.queryRowSet(ctx, "kate_queryRows", atParam([]any{rows}, at))
}

// QueryAppData returns the rows holding the data of appID.
func (c *Client) QueryAppData(ctx context.Context, appID uint32, at *domain.Hash) ([][]byte, error) {
	return c.queryRowSet(ctx, "kate_queryAppData", atParam([]any{appID}, at))
}

func (c *Client) queryRowSet(ctx context.Context, method string, params []any) ([][]byte, error) {
	var rows []ByteList
	if err := c.call(ctx, method, params, &rows); err != nil {
		return nil, err
	}
	out := make([][]byte, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}
