package models

// WorkbookVersion is the current storage schema. Version 1 is the layout of
// the first desktop releases.
const WorkbookVersion = 2

type Version struct {
	ID      string
	Version int
}
