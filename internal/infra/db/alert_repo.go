package db

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultScanPageSize = 256

type AlertRepository struct {
	db       *gorm.DB
	logger   *zap.Logger
	pageSize int
}

func NewAlertRepository(db *gorm.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger.Named("alert_repo"), pageSize: defaultScanPageSize}
}

// StreamActive walks CREATED alerts in id order, one page at a time. No
// connection is held while the caller handles a page, so settling an alert
// never waits on the scan. Rows whose target cannot be decoded are yielded
// as domain.ErrInvalidAlert; rows that fail validation are logged and
// skipped.
func (r *AlertRepository) StreamActive(ctx context.Context) iter.Seq2[domain.Alert, error] {
	return func(yield func(domain.Alert, error) bool) {
		var afterID uint
		for {
			page, err := r.activePage(ctx, afterID)
			if err != nil {
				yield(domain.Alert{}, err)
				return
			}
			for _, row := range page {
				afterID = row.id
				if row.err != nil {
					if !yield(domain.Alert{}, row.err) {
						return
					}
					continue
				}
				if err := row.alert.Validate(); err != nil {
					r.logger.Warn("skipping malformed alert", zap.Uint("alert_id", row.id), zap.Error(err))
					continue
				}
				if !yield(row.alert, nil) {
					return
				}
			}
			if len(page) < r.pageSize {
				return
			}
		}
	}
}

type scannedAlert struct {
	id    uint
	alert domain.Alert
	err   error
}

func (r *AlertRepository) activePage(ctx context.Context, afterID uint) ([]scannedAlert, error) {
	rows, err := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Select("id, owner_id, target_price, trigger_condition, email, state, created_at, updated_at").
		Where("state = ? AND id > ?", string(domain.AlertStateCreated), afterID).
		Order("id").
		Limit(r.pageSize).
		Rows()
	if err != nil {
		return nil, classify("scan active alerts", err)
	}
	defer rows.Close()

	page := make([]scannedAlert, 0, r.pageSize)
	for rows.Next() {
		var (
			alert  domain.Alert
			target string
			cond   string
			state  string
		)
		if err := rows.Scan(&alert.ID, &alert.OwnerID, &target, &cond, &alert.ContactAddress, &state, &alert.CreatedAt, &alert.UpdatedAt); err != nil {
			return nil, classify("read alert row", err)
		}
		alert.Condition = domain.TriggerCondition(cond)
		alert.State = domain.AlertState(state)

		row := scannedAlert{id: alert.ID}
		price, err := decimal.NewFromString(target)
		if err != nil {
			row.err = fmt.Errorf("%w: alert %d target %q: %v", domain.ErrInvalidAlert, alert.ID, target, err)
		} else {
			alert.TargetPrice = price
			row.alert = alert
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("scan active alerts", err)
	}
	return page, nil
}

// TryTransition moves the alert from -> to only if it is still in from.
func (r *AlertRepository) TryTransition(ctx context.Context, alertID uint, from, to domain.AlertState) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, domain.ErrInvalidState
	}
	result := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ? AND state = ?", alertID, string(from)).
		Updates(map[string]any{"state": string(to), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, classify("transition alert", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, alertID uint) (*domain.Alert, error) {
	var model alertModel
	if err := r.db.WithContext(ctx).First(&model, alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get alert", err)
	}
	alert := mapAlertToDomain(model)
	return &alert, nil
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	if alert.State == "" {
		alert.State = domain.AlertStateCreated
	}
	model := mapAlertToModel(*alert)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return classify("create alert", err)
	}
	alert.ID = model.ID
	alert.CreatedAt = model.CreatedAt
	alert.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *AlertRepository) ListByOwner(ctx context.Context, ownerID uint, state *domain.AlertState) ([]domain.Alert, error) {
	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if state != nil {
		query = query.Where("state = ?", string(*state))
	}
	var models []alertModel
	if err := query.Order("id").Find(&models).Error; err != nil {
		return nil, classify("list alerts", err)
	}
	return mapAlertsToDomain(models), nil
}

func mapAlertsToDomain(models []alertModel) []domain.Alert {
	alerts := make([]domain.Alert, 0, len(models))
	for _, model := range models {
		alerts = append(alerts, mapAlertToDomain(model))
	}
	return alerts
}

func mapAlertToDomain(model alertModel) domain.Alert {
	return domain.Alert{
		ID:             model.ID,
		OwnerID:        model.OwnerID,
		TargetPrice:    model.TargetPrice.Decimal,
		Condition:      domain.TriggerCondition(model.Condition),
		ContactAddress: model.ContactAddress,
		State:          domain.AlertState(model.State),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func mapAlertToModel(alert domain.Alert) alertModel {
	return alertModel{
		ID:             alert.ID,
		OwnerID:        alert.OwnerID,
		TargetPrice:    targetPrice{alert.TargetPrice},
		Condition:      string(alert.Condition),
		ContactAddress: alert.ContactAddress,
		State:          string(alert.State),
		CreatedAt:      alert.CreatedAt,
		UpdatedAt:      alert.UpdatedAt,
	}
}
