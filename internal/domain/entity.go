// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// EnrollmentStatus は加入申込のステータスを表す。
type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Employee は従業員エンティティを表す。SSN・生年月日・住所・電話番号は保存時に暗号化される。
type Employee struct {
	ID        string
	TenantID  string
	FirstName string
	LastName  string
	Email     string
	SSN       string
	DOB       string
	Address   string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dependent は扶養家族エンティティを表す。SSN・生年月日は保存時に暗号化される。
type Dependent struct {
	ID           string
	TenantID     string
	EmployeeID   string
	FirstName    string
	LastName     string
	Relationship string
	SSN          string
	DOB          string
	CreatedAt    time.Time
}

// Enrollment は加入申込エンティティを表す。
// 確認番号は暗号化して保存し、検索用にハッシュを別カラムに保持する。
type Enrollment struct {
	ID            string
	TenantID      string
	EmployeeID    string
	PlanID        string
	Status        EnrollmentStatus
	EffectiveDate time.Time
	Confirmation  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
