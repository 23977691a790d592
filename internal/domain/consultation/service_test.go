package consultation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/domain/clinical"
	"github.com/equivet/equivet/internal/domain/identity"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/gestation"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/db"
)

type fakeClinics struct{}

func (fakeClinics) GetClinic(context.Context) (*identity.ClinicProfile, error) {
	return &identity.ClinicProfile{Name: "Clínica Equina Acme", PrimaryColor: identity.DefaultPrimaryColor}, nil
}

type fakePatients struct {
	byID map[uuid.UUID]*patient.Patient
}

func (f *fakePatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	return p, nil
}

func (f *fakePatients) GetPatientByCode(_ context.Context, code string) (*patient.Patient, error) {
	for _, p := range f.byID {
		if p.PatientCode == code {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient")
}

type fakePreventive struct {
	items map[uuid.UUID][]*clinical.PreventiveMedicine
}

func (f *fakePreventive) PreventiveHistory(_ context.Context, id uuid.UUID) ([]*clinical.PreventiveMedicine, error) {
	items := f.items[id]
	clinical.SortPreventive(items)
	return items, nil
}

var testNow = time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	svc  *Service
	mare *patient.Patient
	colt *patient.Patient
}

func newTestEnv() *testEnv {
	mare := &patient.Patient{
		ID: uuid.New(), PatientCode: "EQ-001", Name: "Luna", Sex: patient.SexFemale,
		Color: "Alazán", Breed: "Pura Sangre", BirthDate: calendar.New(2018, time.March, 10),
		Owner: patient.Owner{Name: "Ana Pérez", Phone: "555-1234", Email: "ana@example.com"},
		Pregnancy: patient.Pregnancy{
			IsPregnant: true, ConceptionDate: calendar.New(2024, time.January, 1),
			UltrasoundDate: calendar.New(2024, time.February, 1), Notes: "Gemelar descartado",
		},
	}
	colt := &patient.Patient{
		ID: uuid.New(), PatientCode: "EQ 002/B", Name: "Trueno", Sex: patient.SexMale,
		BirthDate: calendar.New(2024, time.May, 1),
	}
	prev := &fakePreventive{items: map[uuid.UUID][]*clinical.PreventiveMedicine{
		mare.ID: {
			{ID: uuid.New(), Type: clinical.PreventiveDeworming, Product: "Ivermectina", Date: calendar.New(2024, time.March, 2)},
			{ID: uuid.New(), Type: clinical.PreventiveVaccine, Product: "Influenza equina", Date: calendar.New(2024, time.June, 20)},
			{ID: uuid.New(), Type: clinical.PreventiveVitamin, Product: "Vitamina E", Date: calendar.New(2023, time.November, 5)},
		},
	}}
	patients := &fakePatients{byID: map[uuid.UUID]*patient.Patient{mare.ID: mare, colt.ID: colt}}
	calc := gestation.NewCalculator(func() time.Time { return testNow })
	svc := NewService(fakeClinics{}, patients, prev, calc, "https://vet.example.com/", zerolog.Nop())
	return &testEnv{svc: svc, mare: mare, colt: colt}
}

func tenantCtx() context.Context {
	return context.WithValue(context.Background(), db.TenantIDKey, "acme")
}

func TestView_PregnantMare(t *testing.T) {
	env := newTestEnv()
	v, err := env.svc.View(tenantCtx(), "EQ-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.BasicInfo.Name != "Luna" || v.Age != "6 años" {
		t.Errorf("unexpected basic info %+v age %q", v.BasicInfo, v.Age)
	}
	var products []string
	for _, p := range v.PreventiveMedicine {
		products = append(products, p.Product)
	}
	if strings.Join(products, ",") != "Influenza equina,Ivermectina,Vitamina E" {
		t.Errorf("expected newest first, got %v", products)
	}
	if v.Pregnancy == nil {
		t.Fatal("expected pregnancy view")
	}
	r := v.Pregnancy.Gestation
	if r.PregnancyDays != 196 || r.Percentage != 58 || r.EstimatedDueDate != "2024-11-26" {
		t.Errorf("unexpected reading %+v", r)
	}
	if v.Clinic == nil || v.Clinic.Name != "Clínica Equina Acme" {
		t.Errorf("expected clinic branding, got %+v", v.Clinic)
	}
}

func TestView_HidesOwnerContact(t *testing.T) {
	env := newTestEnv()
	v, _ := env.svc.View(tenantCtx(), "EQ-001")
	b, _ := json.Marshal(v)
	for _, secret := range []string{"Ana Pérez", "555-1234", "ana@example.com"} {
		if bytes.Contains(b, []byte(secret)) {
			t.Errorf("public view leaks %q", secret)
		}
	}
}

func TestView_NotPregnant(t *testing.T) {
	env := newTestEnv()
	v, err := env.svc.View(tenantCtx(), "EQ 002/B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Pregnancy != nil {
		t.Error("expected no pregnancy for a colt")
	}
	if v.Age != "2 meses" {
		t.Errorf("expected 2 meses, got %q", v.Age)
	}
	if v.PreventiveMedicine == nil {
		t.Error("expected empty history, not null")
	}
}

func TestView_UnknownPatient(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.View(tenantCtx(), "NOPE"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestConsultationURL(t *testing.T) {
	env := newTestEnv()
	tests := []struct {
		tenant, code, want string
	}{
		{"acme", "EQ-001", "https://vet.example.com/consulta/acme/EQ-001"},
		{"acme", "EQ 002/B", "https://vet.example.com/consulta/acme/EQ%20002%2FB"},
	}
	for _, tt := range tests {
		if got := env.svc.ConsultationURL(tt.tenant, tt.code); got != tt.want {
			t.Errorf("ConsultationURL(%q, %q) = %q, want %q", tt.tenant, tt.code, got, tt.want)
		}
	}
}

func TestQRCode(t *testing.T) {
	env := newTestEnv()
	png, target, err := env.svc.QRCode(tenantCtx(), env.mare.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("expected PNG data")
	}
	if target != "https://vet.example.com/consulta/acme/EQ-001" {
		t.Errorf("unexpected target %s", target)
	}
}
