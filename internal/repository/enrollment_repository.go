package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"benefits-gateway/internal/domain"
)

// Hasher は検索用の決定的ハッシュを計算する。
type Hasher interface {
	Hash(plaintext string) string
}

// EnrollmentModel はgorm用のモデル定義。
// 確認番号は暗号化して保存し、確認番号での検索には confirmation_hash を使う。
type EnrollmentModel struct {
	ID               string    `gorm:"type:char(36);primaryKey"`
	TenantID         string    `gorm:"type:varchar(63);not null;index:idx_enrollments_tenant_employee;uniqueIndex:uk_enrollments_tenant_confirmation"`
	EmployeeID       string    `gorm:"type:char(36);not null;index:idx_enrollments_tenant_employee"`
	PlanID           string    `gorm:"type:varchar(64);not null"`
	Status           string    `gorm:"type:enum('PENDING','ACTIVE','CANCELLED');not null;default:'PENDING'"`
	EffectiveDate    time.Time `gorm:"type:date;not null"`
	Confirmation     string    `gorm:"type:varchar(255)"`
	ConfirmationHash *string   `gorm:"type:char(64);uniqueIndex:uk_enrollments_tenant_confirmation"`
	CreatedAt        time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (EnrollmentModel) TableName() string {
	return "enrollments"
}

// EntityType は暗号化対象の判定に使うエンティティ種別を返す。
func (EnrollmentModel) EntityType() string {
	return "Enrollment"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (e *EnrollmentModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (e *EnrollmentModel) toDomain() *domain.Enrollment {
	return &domain.Enrollment{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EmployeeID:    e.EmployeeID,
		PlanID:        e.PlanID,
		Status:        domain.EnrollmentStatus(e.Status),
		EffectiveDate: e.EffectiveDate,
		Confirmation:  e.Confirmation,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// EnrollmentRepository は加入申込のデータアクセスを提供する。
type EnrollmentRepository struct {
	db     *gorm.DB
	hasher Hasher
}

// NewEnrollmentRepository は新しいEnrollmentRepositoryを生成する。
func NewEnrollmentRepository(db *gorm.DB, hasher Hasher) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, hasher: hasher}
}

// Create は加入申込を保存する。
func (r *EnrollmentRepository) Create(ctx context.Context, enr *domain.Enrollment) error {
	status := enr.Status
	if status == "" {
		status = domain.EnrollmentStatusPending
	}
	model := &EnrollmentModel{
		ID:            enr.ID,
		TenantID:      enr.TenantID,
		EmployeeID:    enr.EmployeeID,
		PlanID:        enr.PlanID,
		Status:        string(status),
		EffectiveDate: enr.EffectiveDate,
		Confirmation:  enr.Confirmation,
	}
	if enr.Confirmation != "" {
		hash := r.hasher.Hash(enr.Confirmation)
		model.ConfirmationHash = &hash
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create enrollment",
			"operation", "create",
			"tenant_id", enr.TenantID,
			"employee_id", enr.EmployeeID,
			"error", err,
		)
		return err
	}
	enr.ID = model.ID
	enr.Status = status
	enr.CreatedAt = model.CreatedAt
	enr.UpdatedAt = model.UpdatedAt
	return nil
}

// UpdateStatus は加入申込のステータスを更新する。
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, tenantID, id string, status domain.EnrollmentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&EnrollmentModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("status", string(status))
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update enrollment status",
			"operation", "update_status",
			"tenant_id", tenantID,
			"id", id,
			"status", status,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// FindByID は指定されたテナントの加入申込を取得する。存在しない場合は nil を返す。
func (r *EnrollmentRepository) FindByID(ctx context.Context, tenantID, id string) (*domain.Enrollment, error) {
	return r.findOne(ctx, "find_by_id", "tenant_id = ? AND id = ?", tenantID, id)
}

// FindByConfirmation は確認番号で加入申込を取得する。確認番号は復号せずハッシュで照合する。
func (r *EnrollmentRepository) FindByConfirmation(ctx context.Context, tenantID, confirmation string) (*domain.Enrollment, error) {
	if confirmation == "" {
		return nil, nil
	}
	return r.findOne(ctx, "find_by_confirmation", "tenant_id = ? AND confirmation_hash = ?", tenantID, r.hasher.Hash(confirmation))
}

func (r *EnrollmentRepository) findOne(ctx context.Context, operation, query string, args ...interface{}) (*domain.Enrollment, error) {
	var model EnrollmentModel
	err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find enrollment",
			"operation", operation,
			"tenant_id", args[0],
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByEmployeeID は従業員の全加入申込を取得する。
func (r *EnrollmentRepository) FindAllByEmployeeID(ctx context.Context, tenantID, employeeID string) ([]*domain.Enrollment, error) {
	return r.findAll(ctx, "find_all_by_employee_id", "tenant_id = ? AND employee_id = ?", tenantID, employeeID)
}

// FindAllByTenantID は指定されたテナントの全加入申込を取得する。
func (r *EnrollmentRepository) FindAllByTenantID(ctx context.Context, tenantID string) ([]*domain.Enrollment, error) {
	return r.findAll(ctx, "find_all_by_tenant_id", "tenant_id = ?", tenantID)
}

func (r *EnrollmentRepository) findAll(ctx context.Context, operation, query string, args ...interface{}) ([]*domain.Enrollment, error) {
	var models []EnrollmentModel
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find enrollments",
			"operation", operation,
			"tenant_id", args[0],
			"error", err,
		)
		return nil, err
	}

	enrollments := make([]*domain.Enrollment, len(models))
	for i, m := range models {
		enrollments[i] = m.toDomain()
	}
	return enrollments, nil
}
