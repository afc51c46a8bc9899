package server

import (
	"bytes"
	"net/http"

	"timeclock/cmd/models"
)

type EmployeeResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	HasFace   bool   `json:"hasFace"`
}

func toEmployeeResponse(e *models.Employee) EmployeeResponse {
	return EmployeeResponse{
		FirstName: e.FirstName,
		LastName:  e.LastName,
		FullName:  e.FullName(),
		HasFace:   e.HasFace(),
	}
}

func (s *Server) HandleListEmployees(w http.ResponseWriter, r *http.Request) {
	all, err := s.Service.ListEmployees()
	if err != nil {
		writeError(w, err)
		return
	}
	employees := make([]EmployeeResponse, 0, len(all))
	for _, e := range all {
		employees = append(employees, toEmployeeResponse(e))
	}
	writeJSON(w, http.StatusOK, employees)
}

type RegisterEmployeeBody struct {
	Name string `json:"name"`
}

func (s *Server) HandleRegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var reqBody RegisterEmployeeBody
	if err := ReadAndUnmarshal(w, r, &reqBody); err != nil {
		return
	}
	e, err := s.Service.RegisterEmployee(reqBody.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeResponse(e))
}

// HandleRegisterFace takes "firstName", "lastName" and the photo in
// "image".
func (s *Server) HandleRegisterFace(w http.ResponseWriter, r *http.Request) {
	image, ok := readUpload(w, r, "image")
	if !ok {
		return
	}
	e, err := s.Service.RegisterFace(r.Context(), r.FormValue("firstName"), r.FormValue("lastName"), image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeResponse(e))
}

// HandleImport registers the names on an uploaded roster spreadsheet.
func (s *Server) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUploadFile(w, r, "file")
	if !ok {
		return
	}
	result, err := s.Service.ImportEmployees(bytes.NewReader(data), filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
