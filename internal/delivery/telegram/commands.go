package telegram

import (
	"errors"
	"strconv"
	"strings"
)

const HelpText = `Commands:
/start - show this help
/help - show this help
/add_alert <target_price> <above|below> <email>
/alerts [created|triggered|deleted] - list your alerts
/delete <alert_id>

Notes:
- above fires once the price is strictly higher than the target, below once it is strictly lower.
- An alert fires once and is then closed.
Example:
/add_alert 50000 above me@example.com
`

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseAddAlertArgs(args string) (targetPrice, condition, email string, err error) {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return "", "", "", ErrInvalidArguments
	}
	return parts[0], parts[1], parts[2], nil
}

func ParseStateFilter(args string) string {
	return strings.TrimSpace(args)
}

func ParseAlertID(args string) (uint, error) {
	idStr := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), "#"))
	if idStr == "" {
		return 0, ErrInvalidArguments
	}
	value, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, ErrInvalidArguments
	}
	return uint(value), nil
}
