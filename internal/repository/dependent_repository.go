package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"benefits-gateway/internal/domain"
)

// DependentModel はgorm用のモデル定義。
type DependentModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	TenantID     string    `gorm:"type:varchar(63);not null;index:idx_dependents_tenant_employee"`
	EmployeeID   string    `gorm:"type:char(36);not null;index:idx_dependents_tenant_employee"`
	FirstName    string    `gorm:"type:varchar(255);not null"`
	LastName     string    `gorm:"type:varchar(255);not null"`
	Relationship string    `gorm:"type:varchar(32);not null"`
	SSN          string    `gorm:"column:ssn;type:varchar(255)"`
	DOB          string    `gorm:"column:dob;type:varchar(255)"`
	CreatedAt    time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (DependentModel) TableName() string {
	return "dependents"
}

// EntityType は暗号化対象の判定に使うエンティティ種別を返す。
func (DependentModel) EntityType() string {
	return "Dependent"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (d *DependentModel) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (d *DependentModel) toDomain() *domain.Dependent {
	return &domain.Dependent{
		ID:           d.ID,
		TenantID:     d.TenantID,
		EmployeeID:   d.EmployeeID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Relationship: d.Relationship,
		SSN:          d.SSN,
		DOB:          d.DOB,
		CreatedAt:    d.CreatedAt,
	}
}

// DependentRepository は扶養家族のデータアクセスを提供する。
type DependentRepository struct {
	db *gorm.DB
}

// NewDependentRepository は新しいDependentRepositoryを生成する。
func NewDependentRepository(db *gorm.DB) *DependentRepository {
	return &DependentRepository{db: db}
}

// Create は扶養家族を保存する。
func (r *DependentRepository) Create(ctx context.Context, dep *domain.Dependent) error {
	model := &DependentModel{
		ID:           dep.ID,
		TenantID:     dep.TenantID,
		EmployeeID:   dep.EmployeeID,
		FirstName:    dep.FirstName,
		LastName:     dep.LastName,
		Relationship: dep.Relationship,
		SSN:          dep.SSN,
		DOB:          dep.DOB,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create dependent",
			"operation", "create",
			"tenant_id", dep.TenantID,
			"employee_id", dep.EmployeeID,
			"error", err,
		)
		return err
	}
	dep.ID = model.ID
	dep.CreatedAt = model.CreatedAt
	return nil
}

// FindByEmployeeID は従業員の扶養家族を取得する。
func (r *DependentRepository) FindByEmployeeID(ctx context.Context, tenantID, employeeID string) ([]*domain.Dependent, error) {
	var models []DependentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find dependents by employee_id",
			"operation", "find_by_employee_id",
			"tenant_id", tenantID,
			"employee_id", employeeID,
			"error", err,
		)
		return nil, err
	}

	dependents := make([]*domain.Dependent, len(models))
	for i, m := range models {
		dependents[i] = m.toDomain()
	}
	return dependents, nil
}

// FindAllByTenantID は指定されたテナントの全扶養家族を取得する。
func (r *DependentRepository) FindAllByTenantID(ctx context.Context, tenantID string) ([]*domain.Dependent, error) {
	var models []DependentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all dependents by tenant_id",
			"operation", "find_all_by_tenant_id",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	dependents := make([]*domain.Dependent, len(models))
	for i, m := range models {
		dependents[i] = m.toDomain()
	}
	return dependents, nil
}
