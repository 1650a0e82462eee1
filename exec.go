package pgops

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// executor is satisfied by both *pgxpool.Conn and pgx.Tx, so the same
// statement loop serves transactional and direct execution.
type executor interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// runStatements executes a builder's statement list in order, stopping at the
// first failure. The returned error carries the 1-based index of the failed
// statement.
func runStatements(ctx context.Context, ex executor, stmts []Statement) ([]*StatementResult, *ToolError) {
	results := make([]*StatementResult, 0, len(stmts))
	for i, stmt := range stmts {
		sr, err := runOne(ctx, ex, stmt)
		if err != nil {
			terr := classifyExecError(err)
			if len(stmts) > 1 {
				terr.Statement = i + 1
			}
			return results, terr
		}
		results = append(results, sr)
	}
	return results, nil
}

func runOne(ctx context.Context, ex executor, stmt Statement) (*StatementResult, error) {
	if !stmt.WantRows {
		tag, err := ex.Exec(ctx, stmt.SQL, stmt.Params...)
		if err != nil {
			return nil, err
		}
		return &StatementResult{RowsAffected: tag.RowsAffected()}, nil
	}
	rows, err := ex.Query(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// collectRows drains a row set into column-ordered maps of JSON-friendly
// values.
func collectRows(rows pgx.Rows) (*StatementResult, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &StatementResult{
		Columns:      columns,
		Rows:         resultRows,
		RowsAffected: rows.CommandTag().RowsAffected(),
	}, nil
}

// convertValue converts a pgx-returned value into a JSON-friendly Go type.
// Non-finite floats become strings since JSON has no encoding for them.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
		hours := us / 3_600_000_000
		us -= hours * 3_600_000_000
		minutes := us / 60_000_000
		us -= minutes * 60_000_000
		seconds := us / 1_000_000
		us -= seconds * 1_000_000
		if us > 0 {
			return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
		}
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		parts := []string{}
		if val.Months != 0 {
			years := val.Months / 12
			months := val.Months % 12
			if years != 0 {
				parts = append(parts, fmt.Sprintf("%d year(s)", years))
			}
			if months != 0 {
				parts = append(parts, fmt.Sprintf("%d mon(s)", months))
			}
		}
		if val.Days != 0 {
			parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
		}
		if val.Microseconds != 0 {
			dur := time.Duration(val.Microseconds) * time.Microsecond
			parts = append(parts, dur.String())
		}
		if len(parts) == 0 {
			return "0"
		}
		return strings.Join(parts, " ")
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Range[any]:
		if !val.Valid {
			return nil
		}
		if val.LowerType == pgtype.Empty {
			return "empty"
		}
		var sb strings.Builder
		if val.LowerType == pgtype.Inclusive {
			sb.WriteByte('[')
		} else {
			sb.WriteByte('(')
		}
		if val.LowerType != pgtype.Unbounded {
			sb.WriteString(fmt.Sprintf("%v", convertValue(val.Lower)))
		}
		sb.WriteByte(',')
		if val.UpperType != pgtype.Unbounded {
			sb.WriteString(fmt.Sprintf("%v", convertValue(val.Upper)))
		}
		if val.UpperType == pgtype.Inclusive {
			sb.WriteByte(']')
		} else {
			sb.WriteByte(')')
		}
		return sb.String()
	case pgtype.Bits:
		if !val.Valid {
			return nil
		}
		result := make([]byte, val.Len)
		for i := int32(0); i < val.Len; i++ {
			byteIdx := i / 8
			bitIdx := 7 - (i % 8)
			if val.Bytes[byteIdx]&(1<<uint(bitIdx)) != 0 {
				result[i] = '1'
			} else {
				result[i] = '0'
			}
		}
		return string(result)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = convertValue(v)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v := range val {
			result[i] = convertValue(v)
		}
		return result
	default:
		return val
	}
}

func convertFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
