package domain

// Decision 表示授权闸门的判定结果。
//
// 未授权时 Address 为空；令牌格式错误、未知、已过期三种情况
// 一律折叠为同一种拒绝结果，对外不区分原因。
type Decision struct {
	Authorized bool   `json:"authorized"`
	Address    string `json:"address,omitempty"`
}
