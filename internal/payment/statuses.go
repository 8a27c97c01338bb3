package payment

import (
	"fmt"

	"github.com/example/clictopay-gateway/internal/gateway"
)

// StatusTable maps a gateway OrderStatus to an outcome. It is consulted only
// when the gateway reports ErrorCode "0"; statuses missing from the table are
// declined.
type StatusTable map[int]Status

// DefaultStatusTable treats only a fully authorized order (2) as paid. Every
// other status is "not yet successfully paid".
var DefaultStatusTable = StatusTable{
	2: StatusSuccess,
}

// DefaultClosedStatuses are gateway order statuses after which the order can
// no longer be paid: cancelled, refunded and declined.
var DefaultClosedStatuses = map[int]bool{
	3: true,
	4: true,
	6: true,
}

// orderStatusNames describe gateway statuses in decline reasons only.
var orderStatusNames = map[int]string{
	0: "registered, not paid",
	1: "pre-authorized",
	2: "authorized",
	3: "authorization cancelled",
	4: "refunded",
	5: "authentication in progress",
	6: "authorization declined",
}

// Classify returns the outcome status for p and, unless it is a success, the
// reason.
func (t StatusTable) Classify(p gateway.StatusPayload) (Status, string) {
	if p.ErrorCode == "" {
		return StatusDeclined, "gateway error code missing"
	}
	if p.ErrorCode != "0" {
		return StatusDeclined, fmt.Sprintf("gateway error %s: %s", p.ErrorCode, p.ErrorMessage)
	}
	if p.OrderStatus == nil {
		return StatusDeclined, "order status missing"
	}

	code := *p.OrderStatus
	reason := fmt.Sprintf("order status %d", code)
	if name, ok := orderStatusNames[code]; ok {
		reason = fmt.Sprintf("order status %d (%s)", code, name)
	}

	status, ok := t[code]
	if !ok {
		return StatusDeclined, reason
	}
	if status == StatusSuccess {
		return status, ""
	}
	return status, reason
}
