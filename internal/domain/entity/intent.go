package entity

// IntentLabel 查询意图
type IntentLabel string

const (
	IntentGreeting    IntentLabel = "greeting"
	IntentQuestion    IntentLabel = "question"
	IntentListRequest IntentLabel = "list_request"
	IntentSummary     IntentLabel = "summary"
	IntentFinish      IntentLabel = "finish"
	IntentGeneral     IntentLabel = "general"
)

// AllIntents 全部合法意图
var AllIntents = []IntentLabel{
	IntentGreeting, IntentQuestion, IntentListRequest, IntentSummary, IntentFinish, IntentGeneral,
}

// ParseIntent 解析意图标签，不合法时返回 false
func ParseIntent(s string) (IntentLabel, bool) {
	for _, it := range AllIntents {
		if string(it) == s {
			return it, true
		}
	}
	return "", false
}

// SkipsRetrieval 寒暄与结束语不需要检索
func (l IntentLabel) SkipsRetrieval() bool {
	return l == IntentGreeting || l == IntentFinish
}
