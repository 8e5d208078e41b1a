package repo

// SortDirection 排序方向
type SortDirection string

const (
	ASC  SortDirection = "ASC"
	DESC SortDirection = "DESC"
)

func (s SortDirection) IsValid() bool { return s == ASC || s == DESC }

// PageOptions 分页查询选项
//
// Filters 的键支持后缀运算符：_like _gt _gte _lt _lte _ne _in _not_in，
// 未声明的列被忽略。Sorts 按列名排序以保证语句稳定。
type PageOptions struct {
	Page      int                      `json:"page"`
	Size      int                      `json:"size"`
	Fields    []string                 `json:"fields"`
	Sorts     map[string]SortDirection `json:"sorts"`
	Filters   map[string]string        `json:"filters"`
	Relations []string                 `json:"relations"`
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Data       []*T  `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalPages int   `json:"total_pages"`
}
