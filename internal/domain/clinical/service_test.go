package clinical

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/blobstore"
	"github.com/equivet/equivet/internal/platform/db"
)

// -- Mock Repositories --

type mockRecordRepo struct {
	records map[uuid.UUID]*MedicalRecord
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records[r.ID] = r
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("medical record")
	}
	return r, nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return apperr.NotFound("medical record")
	}
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	var result []*MedicalRecord
	for _, r := range m.records {
		if r.PatientID == patientID {
			result = append(result, r)
		}
	}
	return result, len(result), nil
}

type mockPreventiveRepo struct {
	items map[uuid.UUID]*PreventiveMedicine
}

func (m *mockPreventiveRepo) Create(_ context.Context, p *PreventiveMedicine) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.items[p.ID] = p
	return nil
}

func (m *mockPreventiveRepo) GetByID(_ context.Context, id uuid.UUID) (*PreventiveMedicine, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("preventive medicine record")
	}
	return p, nil
}

func (m *mockPreventiveRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("preventive medicine record")
	}
	delete(m.items, id)
	return nil
}

func (m *mockPreventiveRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PreventiveMedicine, int, error) {
	items, _ := m.ListAllByPatient(ctx, patientID)
	return items, len(items), nil
}

func (m *mockPreventiveRepo) ListAllByPatient(_ context.Context, patientID uuid.UUID) ([]*PreventiveMedicine, error) {
	var result []*PreventiveMedicine
	for _, p := range m.items {
		if p.PatientID == patientID {
			result = append(result, p)
		}
	}
	// map order is random; the service must sort
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

type mockPatients struct {
	known map[uuid.UUID]bool
}

func (m *mockPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if !m.known[id] {
		return nil, apperr.NotFound("patient")
	}
	return &patient.Patient{ID: id}, nil
}

// -- Helpers --

var testNow = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type testEnv struct {
	svc       *Service
	store     *blobstore.InMemoryBlobStore
	patientID uuid.UUID
}

func newTestEnv() *testEnv {
	pid := uuid.New()
	store := blobstore.NewInMemoryBlobStore()
	svc := NewService(
		&mockRecordRepo{records: make(map[uuid.UUID]*MedicalRecord)},
		&mockPreventiveRepo{items: make(map[uuid.UUID]*PreventiveMedicine)},
		&mockPatients{known: map[uuid.UUID]bool{pid: true}},
		blobstore.NewImages(store, "/public/files"),
		func() time.Time { return testNow },
		zerolog.Nop(),
	)
	return &testEnv{svc: svc, store: store, patientID: pid}
}

func tenantCtx() context.Context {
	return context.WithValue(context.Background(), db.TenantIDKey, "acme")
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func imageUpload(t *testing.T) *multipart.FileHeader {
	t.Helper()
	body, ct := multipartBody(t, nil, "vacuna.png", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set(echo.HeaderContentType, ct)
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	return req.MultipartForm.File["image"][0]
}

// -- Medical History Tests --

func TestCreateMedicalRecord(t *testing.T) {
	env := newTestEnv()
	rec := &MedicalRecord{PatientID: env.patientID, Date: calendar.New(2024, time.July, 1), Description: "Cojera leve del miembro anterior"}
	if err := env.svc.CreateMedicalRecord(tenantCtx(), rec, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if rec.ImageURL != "" {
		t.Errorf("expected no image, got %q", rec.ImageURL)
	}
}

func TestCreateMedicalRecord_WithImage(t *testing.T) {
	env := newTestEnv()
	rec := &MedicalRecord{PatientID: env.patientID, Date: calendar.New(2024, time.July, 1), Description: "Radiografía de control"}
	if err := env.svc.CreateMedicalRecord(tenantCtx(), rec, imageUpload(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ImageURL == "" || env.store.Len() != 1 {
		t.Errorf("expected stored image, url %q, store %d", rec.ImageURL, env.store.Len())
	}

	if err := env.svc.DeleteMedicalRecord(tenantCtx(), rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.store.Len() != 0 {
		t.Error("expected image removed with the record")
	}
}

func TestCreateMedicalRecord_Validation(t *testing.T) {
	env := newTestEnv()
	tests := []struct {
		name string
		rec  MedicalRecord
	}{
		{"missing patient", MedicalRecord{Date: calendar.New(2024, time.July, 1), Description: "Revisión general"}},
		{"missing date", MedicalRecord{PatientID: env.patientID, Description: "Revisión general"}},
		{"future date", MedicalRecord{PatientID: env.patientID, Date: calendar.New(2024, time.July, 16), Description: "Revisión general"}},
		{"short description", MedicalRecord{PatientID: env.patientID, Date: calendar.New(2024, time.July, 1), Description: " ok "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			err := env.svc.CreateMedicalRecord(tenantCtx(), &rec, nil)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateMedicalRecord_UnknownPatient(t *testing.T) {
	env := newTestEnv()
	rec := &MedicalRecord{PatientID: uuid.New(), Date: calendar.New(2024, time.July, 1), Description: "Revisión general"}
	if err := env.svc.CreateMedicalRecord(tenantCtx(), rec, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListMedicalHistory_NewestFirst(t *testing.T) {
	env := newTestEnv()
	for _, d := range []calendar.Date{
		calendar.New(2024, time.March, 1),
		calendar.New(2024, time.June, 1),
		calendar.New(2023, time.December, 24),
	} {
		env.svc.CreateMedicalRecord(tenantCtx(), &MedicalRecord{PatientID: env.patientID, Date: d, Description: "Revisión general"}, nil)
	}
	items, total, err := env.svc.ListMedicalHistory(context.Background(), env.patientID, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3, got %d", total)
	}
	if items[0].Date.String() != "2024-06-01" || items[2].Date.String() != "2023-12-24" {
		t.Errorf("unexpected order %s, %s, %s", items[0].Date, items[1].Date, items[2].Date)
	}
}

func TestDeleteMedicalRecord_NotFound(t *testing.T) {
	env := newTestEnv()
	if err := env.svc.DeleteMedicalRecord(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Preventive Medicine Tests --

func TestCreatePreventive(t *testing.T) {
	env := newTestEnv()
	p := &PreventiveMedicine{
		PatientID: env.patientID,
		Type:      " Vaccine ",
		Product:   "Influenza equina",
		Date:      calendar.New(2024, time.July, 1),
		NextDose:  calendar.New(2025, time.July, 1),
		Lot:       "L-2231",
	}
	if err := env.svc.CreatePreventive(tenantCtx(), p, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Type != PreventiveVaccine {
		t.Errorf("expected normalized type, got %q", p.Type)
	}
}

func TestCreatePreventive_Validation(t *testing.T) {
	env := newTestEnv()
	date := calendar.New(2024, time.July, 1)
	tests := []struct {
		name string
		p    PreventiveMedicine
	}{
		{"missing patient", PreventiveMedicine{Type: PreventiveVaccine, Date: date}},
		{"invalid type", PreventiveMedicine{PatientID: env.patientID, Type: "surgery", Date: date}},
		{"missing date", PreventiveMedicine{PatientID: env.patientID, Type: PreventiveVaccine}},
		{"future date", PreventiveMedicine{PatientID: env.patientID, Type: PreventiveVaccine, Date: calendar.New(2024, time.August, 1)}},
		{"next dose same day", PreventiveMedicine{PatientID: env.patientID, Type: PreventiveDeworming, Date: date, NextDose: date}},
		{"next dose before", PreventiveMedicine{PatientID: env.patientID, Type: PreventiveDeworming, Date: date, NextDose: calendar.New(2024, time.June, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			err := env.svc.CreatePreventive(tenantCtx(), &p, nil)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPreventiveHistory_SortedByDateDescending(t *testing.T) {
	env := newTestEnv()
	dates := []calendar.Date{
		calendar.New(2023, time.May, 5),
		calendar.New(2024, time.February, 10),
		calendar.New(2022, time.November, 30),
		calendar.New(2024, time.July, 1),
	}
	for _, d := range dates {
		p := &PreventiveMedicine{PatientID: env.patientID, Type: PreventiveVaccine, Product: "Tétanos", Date: d}
		if err := env.svc.CreatePreventive(tenantCtx(), p, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := env.svc.PreventiveHistory(context.Background(), env.patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2024-07-01", "2024-02-10", "2023-05-05", "2022-11-30"}
	for i, w := range want {
		if items[i].Date.String() != w {
			t.Errorf("position %d: got %s, want %s", i, items[i].Date, w)
		}
	}

	page, total, err := env.svc.ListPreventive(context.Background(), env.patientID, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 || page[0].Date.String() != "2024-07-01" {
		t.Errorf("unexpected page: total %d first %s", total, page[0].Date)
	}
}

func TestSortPreventive_SameDateNewestEntryFirst(t *testing.T) {
	d := calendar.New(2024, time.July, 1)
	older := &PreventiveMedicine{Date: d, CreatedAt: testNow.Add(-time.Hour), Product: "older"}
	newer := &PreventiveMedicine{Date: d, CreatedAt: testNow, Product: "newer"}
	items := []*PreventiveMedicine{older, newer}
	SortPreventive(items)
	if items[0].Product != "newer" {
		t.Errorf("expected newer first, got %s", items[0].Product)
	}
}

func TestListPreventive_UnknownPatient(t *testing.T) {
	env := newTestEnv()
	if _, _, err := env.svc.ListPreventive(context.Background(), uuid.New(), 20, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeletePreventive(t *testing.T) {
	env := newTestEnv()
	p := &PreventiveMedicine{PatientID: env.patientID, Type: PreventiveVitamin, Date: calendar.New(2024, time.July, 1)}
	env.svc.CreatePreventive(tenantCtx(), p, imageUpload(t))
	if err := env.svc.DeletePreventive(tenantCtx(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.GetPreventive(context.Background(), p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if env.store.Len() != 0 {
		t.Error("expected image removed")
	}
}
