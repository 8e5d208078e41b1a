package db

import (
	"context"
	"fmt"
)

// Row 表示一行扁平结果：列名 → 值
type Row = map[string]any

// ScanMaps 读取结果集全部行为 []Row，并关闭 rows。
//
// 驱动常以 []byte 返回 TEXT 列，这里统一转换为 string；其余值原样保留，
// 类型转换由结果转换器按列的语义类型完成。
func ScanMaps(rows IRows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("db: get columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("db: scan: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: rows iteration: %w", err)
	}
	return result, nil
}

// QueryMaps 执行查询并返回扁平行
func QueryMaps(ctx context.Context, d IDatabase, query string, args ...any) ([]Row, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return ScanMaps(rows)
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
