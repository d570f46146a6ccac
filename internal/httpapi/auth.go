package httpapi

import (
	"net/http"
)

// 角色常量（来自上游网关的身份头）
const (
	RoleAdmin       = "admin"
	RoleFarmManager = "farm_manager"
	RoleOperator    = "operator"
	RoleViewer      = "viewer"
)

// 操作常量
const (
	OpRead         = "read"
	OpIngest       = "ingest"
	OpAlertAck     = "alert_ack"
	OpAlertResolve = "alert_resolve"
	OpRuleWrite    = "rule_write"
	OpRuleDelete   = "rule_delete"
	OpPolicyWrite  = "policy_write"
)

// Actor 请求身份（由上游网关注入的身份头解析而来，本服务不做认证）
type Actor struct {
	UserID string
	FarmID string
	Role   string
}

// ActorFromRequest 从请求头解析身份
func ActorFromRequest(r *http.Request) Actor {
	return Actor{
		UserID: r.Header.Get("X-User-ID"),
		FarmID: r.Header.Get("X-Farm-ID"),
		Role:   r.Header.Get("X-User-Role"),
	}
}

// Allowed 角色 → 操作的授权表
// viewer 只读；operator 可上报/确认/解决；farm_manager 可管理规则与策略；
// 规则硬删除仅 admin。
func Allowed(actor Actor, op string) bool {
	switch op {
	case OpRead:
		switch actor.Role {
		case RoleAdmin, RoleFarmManager, RoleOperator, RoleViewer:
			return true
		}
	case OpIngest, OpAlertAck, OpAlertResolve:
		switch actor.Role {
		case RoleAdmin, RoleFarmManager, RoleOperator:
			return true
		}
	case OpRuleWrite, OpPolicyWrite:
		switch actor.Role {
		case RoleAdmin, RoleFarmManager:
			return true
		}
	case OpRuleDelete:
		return actor.Role == RoleAdmin
	}
	return false
}
