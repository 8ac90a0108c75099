package insights

import "github.com/sqlsight/sqlsight/internal/chart"

func isNumericColumn(rs chart.ResultSet, col int) bool {
	return chart.NumericColumn(rs, col)
}

func toNumber(row []any, col int) (float64, bool) {
	if col >= len(row) {
		return 0, false
	}
	return chart.Number(row[col])
}

func cellString(row []any, col int) any {
	if col >= len(row) || row[col] == nil {
		return "N/A"
	}
	if b, ok := row[col].([]byte); ok {
		return string(b)
	}
	return row[col]
}
