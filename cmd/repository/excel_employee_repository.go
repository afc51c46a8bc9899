package repository

import (
	"fmt"
	"sync"
	"time"

	"timeclock/cmd/face"
	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"github.com/xuri/excelize/v2"
)

// ExcelEmployeeRepository implements EmployeeRepository on the
// EmployeeData sheet of the employee workbook.
type ExcelEmployeeRepository struct {
	mu   sync.Mutex
	path string
}

func NewExcelEmployeeRepository(path string) *ExcelEmployeeRepository {
	return &ExcelEmployeeRepository{path: path}
}

func (repo *ExcelEmployeeRepository) Path() string {
	return repo.path
}

func (repo *ExcelEmployeeRepository) LoadAllEmployees() ([]*models.Employee, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := openExistingWorkbook(repo.path)
	if err != nil {
		return nil, fmt.Errorf("LoadAllEmployees: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	defer f.Close()

	employees, _, err := readEmployees(f)
	if err != nil {
		return nil, fmt.Errorf("LoadAllEmployees: %w", err)
	}
	return employees, nil
}

func (repo *ExcelEmployeeRepository) GetEmployeeByName(name string) (*models.Employee, error) {
	all, err := repo.LoadAllEmployees()
	if err != nil {
		return nil, fmt.Errorf("GetEmployeeByName: %w", err)
	}
	return models.GetEmployeeFromList(name, all), nil
}

// SaveEmployee overwrites the row with the same full name, or appends one.
func (repo *ExcelEmployeeRepository) SaveEmployee(e models.Employee) error {
	if err := repo.writeEmployees([]*models.Employee{&e}); err != nil {
		return fmt.Errorf("SaveEmployee: %w", err)
	}
	utils.PrintLog("Saved employee %s", e.FullName())
	return nil
}

// SaveEmployees writes a batch with one open and one save of the workbook.
func (repo *ExcelEmployeeRepository) SaveEmployees(employees []*models.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	if err := repo.writeEmployees(employees); err != nil {
		return fmt.Errorf("SaveEmployees: %w", err)
	}
	utils.PrintLog("Saved %d employees", len(employees))
	return nil
}

func (repo *ExcelEmployeeRepository) writeEmployees(employees []*models.Employee) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, _, err := openWorkbook(repo.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := ensureSheet(f, models.EmployeeSheet, models.EmployeeHeader); err != nil {
		return err
	}
	existing, rowNums, err := readEmployees(f)
	if err != nil {
		return err
	}
	rowByName := make(map[string]int, len(existing))
	for i, e := range existing {
		rowByName[e.FullName()] = rowNums[i]
	}
	rows, err := f.GetRows(models.EmployeeSheet)
	if err != nil {
		return err
	}
	nextRow := len(rows) + 1

	for _, e := range employees {
		rowNum, ok := rowByName[e.FullName()]
		if !ok {
			rowNum = nextRow
			nextRow++
			rowByName[e.FullName()] = rowNum
		}
		encoding := ""
		if e.HasFace() {
			encoding = e.FaceEncoding.String()
		}
		values := []interface{}{e.FirstName, e.LastName, e.ImagePath, encoding}
		if err := f.SetSheetRow(models.EmployeeSheet, cellName(1, rowNum), &values); err != nil {
			return err
		}
	}
	return saveWorkbook(f, repo.path)
}

func (repo *ExcelEmployeeRepository) LoadFaceGallery() ([]face.Reference, error) {
	all, err := repo.LoadAllEmployees()
	if err != nil {
		return nil, fmt.Errorf("LoadFaceGallery: %w", err)
	}
	return galleryFromEmployees(all), nil
}

// readEmployees returns the employees in sheet order along with the row
// number each was read from.
func readEmployees(f *excelize.File) ([]*models.Employee, []int, error) {
	idx, err := f.GetSheetIndex(models.EmployeeSheet)
	if err != nil {
		return nil, nil, err
	}
	if idx == -1 {
		return nil, nil, nil
	}
	rows, err := f.GetRows(models.EmployeeSheet)
	if err != nil {
		return nil, nil, err
	}

	var employees []*models.Employee
	var rowNums []int
	for i := 1; i < len(rows); i++ {
		firstName := cellValue(rows[i], 0)
		if firstName == "" {
			continue
		}
		e := models.NewEmployee(firstName, cellValue(rows[i], 1))
		e.CreatedAt = time.Time{}
		e.ImagePath = cellValue(rows[i], 2)
		if raw := cellValue(rows[i], 3); raw != "" {
			enc, err := face.ParseEncoding(raw)
			if err != nil {
				utils.PrintWarning("Ignoring face encoding for %s: %v", e.FullName(), err)
			} else {
				e.FaceEncoding = enc
			}
		}
		employees = append(employees, &e)
		rowNums = append(rowNums, i+1)
	}
	return employees, rowNums, nil
}
