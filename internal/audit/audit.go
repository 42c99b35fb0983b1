package audit

import (
	"context"

	"github.com/weiawesome/wes-messenger/pkg/log"
)

// Audit actions.
const (
	ActionSendMessage     = "message.send"
	ActionScheduleMessage = "message.schedule"
	ActionEditMessage     = "message.edit"
	ActionDeleteMessage   = "message.delete"
	ActionMarkRead        = "message.read"
	ActionReact           = "message.react"
	ActionThrottled       = "message.throttled"
	ActionSetStatus       = "status.set"
	ActionFollow          = "friend.follow"
	ActionUnfollow        = "friend.unfollow"
	ActionUpload          = "attachment.upload"
	ActionConnect         = "ws.connect"
	ActionDisconnect      = "ws.disconnect"
	ActionProvisionKeys   = "user.provision_keys"
)

const (
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(log.FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogTarget emits an audit entry about an action on another entity.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(log.FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action, userID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(log.FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
