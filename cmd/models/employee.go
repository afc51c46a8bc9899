package models

import (
	"strings"
	"time"

	"timeclock/cmd/face"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

var employeeNamespace = uuid.MustParse("5b0e6b8c-4c6a-4c1e-9d63-7a1f0e2d3c4b")

const EmployeeSheet = "EmployeeData"

var (
	EmployeeHeader = []string{"First Name", "Last Name", "ImagePath", "FaceEncoding"}
	// Alpha releases only kept names.
	LegacyEmployeeHeader = []string{"First Name", "Last Name"}
)

// Employee is a registered member of staff.
type Employee struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	ImagePath    string
	FaceEncoding face.Encoding
	CreatedAt    time.Time
}

// NewEmployee builds an employee whose ID is derived from the full name, so
// every backend agrees on it.
func NewEmployee(firstName, lastName string) Employee {
	e := Employee{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		CreatedAt: time.Now(),
	}
	e.ID = EmployeeID(e.FullName())
	return e
}

func EmployeeID(fullName string) uuid.UUID {
	return uuid.NewSHA1(employeeNamespace, []byte(strings.TrimSpace(fullName)))
}

func (e Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

func (e Employee) HasFace() bool {
	return len(e.FaceEncoding) > 0
}

// SplitFullName takes the first word as the first name and the rest, if
// any, as the last name.
func SplitFullName(fullName string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(fullName), " ", 2)
	firstName := parts[0]
	lastName := ""
	if len(parts) > 1 {
		lastName = strings.TrimSpace(parts[1])
	}
	return firstName, lastName
}

func GetEmployeeFromList(name string, all []*Employee) *Employee {
	name = strings.TrimSpace(name)
	for _, e := range all {
		if e.FullName() == name {
			return e
		}
	}
	return nil
}

func (e Employee) MarshalBSON() ([]byte, error) {
	type Alias Employee
	aux := &struct {
		*Alias `bson:",inline"`
	}{
		Alias: (*Alias)(&e),
	}
	aux.CreatedAt = e.CreatedAt.UTC()
	return bson.Marshal(aux)
}

func (e *Employee) UnmarshalBSON(data []byte) error {
	type Alias Employee
	aux := &struct {
		*Alias `bson:",inline"`
	}{
		Alias: (*Alias)(e),
	}
	if err := bson.Unmarshal(data, aux); err != nil {
		return err
	}
	e.CreatedAt = e.CreatedAt.In(time.Local)
	return nil
}
