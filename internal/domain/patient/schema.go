package patient

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ehr/tracker/internal/platform/apperr"
)

// DateLayout is the ISO calendar date format used on the wire.
const DateLayout = "2006-01-02"

// Field limits, matching the column sizes in migrations/001_core.sql.
const (
	maxNameLen       = 60
	minNationalIDLen = 3
	maxNationalIDLen = 20
	maxPhoneLen      = 30
	maxEmailLen      = 120
	maxMedNameLen    = 120
	maxDosageLen     = 120
)

// Date is a calendar date without time of day. Decoding never fails: input
// that is not a YYYY-MM-DD string is remembered and reported by Validate, so
// the error names the offending field.
type Date struct {
	t   time.Time
	bad bool
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) Time() time.Time { return d.t }

func (d Date) String() string { return d.t.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{bad: true}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		*d = Date{bad: true}
		return nil
	}
	*d = parsed
	return nil
}

// Timestamp is an instant. It accepts RFC 3339 and, for naive input without
// an offset, interprets the value as UTC.
type Timestamp struct {
	t   time.Time
	bad bool
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{t: t} }

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{t: t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{t: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q: expected RFC 3339", s)
}

func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.t.Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*ts = Timestamp{bad: true}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		*ts = Timestamp{bad: true}
		return nil
	}
	*ts = parsed
	return nil
}

// Optional is one slot of a partial update. Set reports whether the key was
// present in the request at all; Null whether it was present as null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a slot holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a slot that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		var zero T
		o.Null, o.Value = true, zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

// ptr returns nil for a null slot and a pointer to the value otherwise.
func (o Optional[T]) ptr() *T {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// -- Inbound shapes --

// PatientCreate is the body of POST /patients and one row of a bulk import.
type PatientCreate struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	NationalID  string  `json:"national_id"`
	DateOfBirth *Date   `json:"date_of_birth"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

func (in *PatientCreate) Validate() error {
	f := fieldErrors{}
	f.name("first_name", in.FirstName)
	f.name("last_name", in.LastName)
	if strings.TrimSpace(in.NationalID) == "" {
		f.add("national_id", "is required")
	} else {
		f.length("national_id", in.NationalID, minNationalIDLen, maxNationalIDLen)
	}
	f.date("date_of_birth", in.DateOfBirth)
	if in.Phone != nil {
		f.length("phone", *in.Phone, 0, maxPhoneLen)
	}
	if in.Email != nil {
		f.email("email", *in.Email)
	}
	if in.Address != nil {
		f.text("address", *in.Address)
	}
	return f.err()
}

func (in *PatientCreate) toModel() *Patient {
	return &Patient{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		NationalID:  in.NationalID,
		DateOfBirth: dateTime(in.DateOfBirth),
		Phone:       in.Phone,
		Email:       in.Email,
		Address:     in.Address,
	}
}

// PatientUpdate is the body of PATCH /patients/:id. Only slots present in the
// request are applied. NationalID lets a client echo back a PatientOut: the
// service accepts it only when it equals the stored value, since the natural
// key never changes after creation.
type PatientUpdate struct {
	FirstName   Optional[string] `json:"first_name"`
	LastName    Optional[string] `json:"last_name"`
	DateOfBirth Optional[Date]   `json:"date_of_birth"`
	Phone       Optional[string] `json:"phone"`
	Email       Optional[string] `json:"email"`
	Address     Optional[string] `json:"address"`
	NationalID  Optional[string] `json:"national_id"`
}

func (in *PatientUpdate) Validate() error {
	f := fieldErrors{}
	if in.NationalID.Set && in.NationalID.Null {
		f.add("national_id", errImmutable)
	}
	if in.FirstName.Set {
		if in.FirstName.Null {
			f.add("first_name", "must not be null")
		} else {
			f.name("first_name", in.FirstName.Value)
		}
	}
	if in.LastName.Set {
		if in.LastName.Null {
			f.add("last_name", "must not be null")
		} else {
			f.name("last_name", in.LastName.Value)
		}
	}
	if in.DateOfBirth.Set && !in.DateOfBirth.Null {
		f.date("date_of_birth", &in.DateOfBirth.Value)
	}
	if in.Phone.Set && !in.Phone.Null {
		f.length("phone", in.Phone.Value, 0, maxPhoneLen)
	}
	if in.Email.Set && !in.Email.Null {
		f.email("email", in.Email.Value)
	}
	if in.Address.Set && !in.Address.Null {
		f.text("address", in.Address.Value)
	}
	return f.err()
}

const errImmutable = "is immutable and cannot be updated"

// CheckNationalID rejects a national_id slot that differs from the stored one.
func (in *PatientUpdate) CheckNationalID(stored string) error {
	if in.NationalID.Set && (in.NationalID.Null || in.NationalID.Value != stored) {
		return apperr.Invalid("national_id", errImmutable)
	}
	return nil
}

// Empty reports whether the request carried no slots at all.
func (in *PatientUpdate) Empty() bool {
	return !in.FirstName.Set && !in.LastName.Set && !in.DateOfBirth.Set &&
		!in.Phone.Set && !in.Email.Set && !in.Address.Set
}

// Apply copies the present slots onto p.
func (in *PatientUpdate) Apply(p *Patient) {
	if in.FirstName.Set {
		p.FirstName = in.FirstName.Value
	}
	if in.LastName.Set {
		p.LastName = in.LastName.Value
	}
	if in.DateOfBirth.Set {
		p.DateOfBirth = dateTime(in.DateOfBirth.ptr())
	}
	if in.Phone.Set {
		p.Phone = in.Phone.ptr()
	}
	if in.Email.Set {
		p.Email = in.Email.ptr()
	}
	if in.Address.Set {
		p.Address = in.Address.ptr()
	}
}

// VisitCreate is the body of POST /patients/:id/visits.
type VisitCreate struct {
	VisitTime *Timestamp `json:"visit_time"`
	Complaint *string    `json:"complaint"`
	Diagnosis *string    `json:"diagnosis"`
	Notes     *string    `json:"notes"`
}

func (in *VisitCreate) Validate() error {
	f := fieldErrors{}
	if in.VisitTime != nil && in.VisitTime.bad {
		f.add("visit_time", "must be an RFC 3339 timestamp")
	}
	f.optionalText("complaint", in.Complaint)
	f.optionalText("diagnosis", in.Diagnosis)
	f.optionalText("notes", in.Notes)
	return f.err()
}

// MedicationCreate is the body of POST /patients/:id/medications.
type MedicationCreate struct {
	Name         string  `json:"name"`
	Dosage       *string `json:"dosage"`
	StartDate    *Date   `json:"start_date"`
	EndDate      *Date   `json:"end_date"`
	Instructions *string `json:"instructions"`
}

func (in *MedicationCreate) Validate() error {
	f := fieldErrors{}
	if strings.TrimSpace(in.Name) == "" {
		f.add("name", "is required")
	} else {
		f.length("name", in.Name, 1, maxMedNameLen)
	}
	if in.Dosage != nil {
		f.length("dosage", *in.Dosage, 0, maxDosageLen)
	}
	f.date("start_date", in.StartDate)
	f.date("end_date", in.EndDate)
	f.optionalText("instructions", in.Instructions)
	return f.err()
}

// -- Outbound shapes --

type PatientOut struct {
	ID          int64   `json:"id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	NationalID  string  `json:"national_id"`
	DateOfBirth *Date   `json:"date_of_birth"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

func NewPatientOut(p *Patient) PatientOut {
	return PatientOut{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		NationalID:  p.NationalID,
		DateOfBirth: dateOut(p.DateOfBirth),
		Phone:       p.Phone,
		Email:       p.Email,
		Address:     p.Address,
	}
}

func NewPatientOuts(ps []*Patient) []PatientOut {
	out := make([]PatientOut, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewPatientOut(p))
	}
	return out
}

type VisitOut struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	VisitTime Timestamp `json:"visit_time"`
	Complaint *string   `json:"complaint"`
	Diagnosis *string   `json:"diagnosis"`
	Notes     *string   `json:"notes"`
}

func NewVisitOut(v *Visit) VisitOut {
	return VisitOut{
		ID:        v.ID,
		PatientID: v.PatientID,
		VisitTime: NewTimestamp(v.VisitTime.UTC()),
		Complaint: v.Complaint,
		Diagnosis: v.Diagnosis,
		Notes:     v.Notes,
	}
}

func NewVisitOuts(vs []*Visit) []VisitOut {
	out := make([]VisitOut, 0, len(vs))
	for _, v := range vs {
		out = append(out, NewVisitOut(v))
	}
	return out
}

type MedicationOut struct {
	ID           int64   `json:"id"`
	PatientID    int64   `json:"patient_id"`
	Name         string  `json:"name"`
	Dosage       *string `json:"dosage"`
	StartDate    *Date   `json:"start_date"`
	EndDate      *Date   `json:"end_date"`
	Instructions *string `json:"instructions"`
}

func NewMedicationOut(m *Medication) MedicationOut {
	return MedicationOut{
		ID:           m.ID,
		PatientID:    m.PatientID,
		Name:         m.Name,
		Dosage:       m.Dosage,
		StartDate:    dateOut(m.StartDate),
		EndDate:      dateOut(m.EndDate),
		Instructions: m.Instructions,
	}
}

func NewMedicationOuts(ms []*Medication) []MedicationOut {
	out := make([]MedicationOut, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMedicationOut(m))
	}
	return out
}

func dateTime(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.t
	return &t
}

func dateOut(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	d := NewDate(*t)
	return &d
}

// -- Validation helpers --

type fieldErrors map[string]string

// add keeps the first problem reported for a field.
func (f fieldErrors) add(field, problem string) {
	if _, ok := f[field]; !ok {
		f[field] = problem
	}
}

func (f fieldErrors) name(field, v string) {
	if strings.TrimSpace(v) == "" {
		f.add(field, "is required")
		return
	}
	f.length(field, v, 1, maxNameLen)
}

// text rejects values Postgres cannot store in a text column.
func (f fieldErrors) text(field, v string) {
	if strings.IndexByte(v, 0) >= 0 {
		f.add(field, "must not contain NUL characters")
	}
}

func (f fieldErrors) optionalText(field string, v *string) {
	if v != nil {
		f.text(field, *v)
	}
}

func (f fieldErrors) length(field, v string, min, max int) {
	f.text(field, v)
	n := utf8.RuneCountInString(v)
	switch {
	case n < min:
		f.add(field, fmt.Sprintf("must be at least %d characters", min))
	case n > max:
		f.add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

func (f fieldErrors) date(field string, d *Date) {
	if d != nil && d.bad {
		f.add(field, "must be a date in YYYY-MM-DD format")
	}
}

func (f fieldErrors) email(field, v string) {
	f.text(field, v)
	if !validEmail(v) {
		f.add(field, "must be a valid email address")
		return
	}
	f.length(field, v, 0, maxEmailLen)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f)
}

// validEmail accepts a bare addr-spec whose domain has at least one dot.
func validEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(v, '@')
	domain := v[at+1:]
	return strings.Contains(domain, ".") &&
		!strings.HasPrefix(domain, ".") &&
		!strings.HasSuffix(domain, ".")
}
