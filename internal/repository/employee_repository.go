// Package repository はデータアクセス層の実装を提供する。
//
// 保護対象フィールド（SSN、生年月日など）はgormのフィールド暗号化プラグインが透過的に暗号化・復号するため、
// リポジトリは平文のみを扱う。すべての検索はテナントIDで絞り込む。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"benefits-gateway/internal/domain"
)

// EmployeeModel はgorm用のモデル定義。
type EmployeeModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	TenantID  string    `gorm:"type:varchar(63);not null;index:idx_employees_tenant_id"`
	FirstName string    `gorm:"type:varchar(255);not null"`
	LastName  string    `gorm:"type:varchar(255);not null"`
	Email     string    `gorm:"type:varchar(255);not null"`
	SSN       string    `gorm:"column:ssn;type:varchar(255)"`
	DOB       string    `gorm:"column:dob;type:varchar(255)"`
	Address   string    `gorm:"type:text"`
	Phone     string    `gorm:"type:varchar(255)"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (EmployeeModel) TableName() string {
	return "employees"
}

// EntityType は暗号化対象の判定に使うエンティティ種別を返す。
func (EmployeeModel) EntityType() string {
	return "Employee"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (e *EmployeeModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (e *EmployeeModel) toDomain() *domain.Employee {
	return &domain.Employee{
		ID:        e.ID,
		TenantID:  e.TenantID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Email:     e.Email,
		SSN:       e.SSN,
		DOB:       e.DOB,
		Address:   e.Address,
		Phone:     e.Phone,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func employeeModelFrom(e *domain.Employee) *EmployeeModel {
	return &EmployeeModel{
		ID:        e.ID,
		TenantID:  e.TenantID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Email:     e.Email,
		SSN:       e.SSN,
		DOB:       e.DOB,
		Address:   e.Address,
		Phone:     e.Phone,
		CreatedAt: e.CreatedAt,
	}
}

// EmployeeRepository は従業員のデータアクセスを提供する。
type EmployeeRepository struct {
	db *gorm.DB
}

// NewEmployeeRepository は新しいEmployeeRepositoryを生成する。
func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// Create は従業員を保存する。
func (r *EmployeeRepository) Create(ctx context.Context, emp *domain.Employee) error {
	model := employeeModelFrom(emp)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create employee",
			"operation", "create",
			"tenant_id", emp.TenantID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	emp.ID = model.ID
	emp.CreatedAt = model.CreatedAt
	emp.UpdatedAt = model.UpdatedAt
	return nil
}

// Update は従業員の全項目を更新する。該当レコードが無い場合は domain.ErrRecordNotFound を返す。
func (r *EmployeeRepository) Update(ctx context.Context, emp *domain.Employee) error {
	model := employeeModelFrom(emp)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("tenant_id = ?", emp.TenantID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(model)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update employee",
			"operation", "update",
			"tenant_id", emp.TenantID,
			"id", emp.ID,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	emp.UpdatedAt = model.UpdatedAt
	return nil
}

// Upsert は従業員を作成し、IDが既に存在する場合は更新する。
func (r *EmployeeRepository) Upsert(ctx context.Context, emp *domain.Employee) error {
	model := employeeModelFrom(emp)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "email", "ssn", "dob", "address", "phone", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to upsert employee",
			"operation", "upsert",
			"tenant_id", emp.TenantID,
			"id", emp.ID,
			"error", err,
		)
		return err
	}
	emp.ID = model.ID
	return nil
}

// FindByID は指定されたテナントの従業員を取得する。存在しない場合は nil を返す。
func (r *EmployeeRepository) FindByID(ctx context.Context, tenantID, id string) (*domain.Employee, error) {
	var model EmployeeModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find employee",
			"operation", "find_by_id",
			"tenant_id", tenantID,
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByTenantID は指定されたテナントの全従業員を取得する。
func (r *EmployeeRepository) FindAllByTenantID(ctx context.Context, tenantID string) ([]*domain.Employee, error) {
	var models []EmployeeModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all employees by tenant_id",
			"operation", "find_all_by_tenant_id",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	employees := make([]*domain.Employee, len(models))
	for i, m := range models {
		employees[i] = m.toDomain()
	}
	return employees, nil
}
