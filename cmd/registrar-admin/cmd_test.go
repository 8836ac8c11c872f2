package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
)

type stubImporter struct {
	kind     service.ImportKind
	body     string
	password string
}

func (s *stubImporter) Import(_ context.Context, kind service.ImportKind, reader io.Reader) (*service.ImportReport, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	s.kind = kind
	s.body = string(data)
	return &service.ImportReport{
		Kind:     kind,
		Created:  2,
		Skipped:  1,
		Failures: []service.ImportFailure{{Line: 4, Reason: "course not found"}},
	}, nil
}

type stubResetter struct {
	req *dto.ResetPasswordRequest
}

func (s *stubResetter) ResetPassword(_ context.Context, req dto.ResetPasswordRequest, _ string) error {
	s.req = &req
	return nil
}

type stubRecalculator struct{}

func (stubRecalculator) RecalculateSection(_ context.Context, sectionID string) (*service.RecalculateResult, error) {
	if sectionID == "missing" {
		return nil, errors.New("section not found")
	}
	return &service.RecalculateResult{Updated: 3, Unchanged: 5}, nil
}

type stubGenerator struct {
	semester models.Semester
	year     int
}

func (s *stubGenerator) ArchiveAll(_ context.Context, semester models.Semester, year int, format service.ExportFormat, sink service.TranscriptSink) (int, error) {
	s.semester, s.year = semester, year
	if sink != nil {
		if _, err := sink.Save("transcript_STU0001_fall_2024."+string(format), []byte("archived")); err != nil {
			return 0, err
		}
	}
	return 7, nil
}

type fixture struct {
	cli         *commandLine
	out         *bytes.Buffer
	importer    *stubImporter
	resetter    *stubResetter
	transcripts *stubGenerator
}

func setup(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		out:         &bytes.Buffer{},
		importer:    &stubImporter{},
		resetter:    &stubResetter{},
		transcripts: &stubGenerator{},
	}
	f.cli = &commandLine{
		importer: func(temp string) importer {
			f.importer.password = temp
			return f.importer
		},
		users:       f.resetter,
		grades:      stubRecalculator{},
		transcripts: f.transcripts,
		out:         f.out,
		logger:      zap.NewNop(),
	}
	return f
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCases(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := cli.run(append([]string{"registrar-admin"}, tc.args...))
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.wantErrStr != "":
				assert.EqualError(t, err, tc.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommandLineUsage(t *testing.T) {
	f := setup(t)
	runCases(t, f.cli, []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, f.out.String(), "resetpassword -email EMAIL")
}

func TestCommandLineMigrate(t *testing.T) {
	f := setup(t)
	original := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = original })

	var commands []string
	gooseRunFunc = func(_ context.Context, command string, _ *sql.DB, dir string, args ...string) error {
		require.Equal(t, ".", dir)
		switch command {
		case "up", "down", "status", "version", "redo", "reset":
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		commands = append(commands, command)
		return nil
	}

	runCases(t, f.cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to without version", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	})
	assert.Equal(t, []string{"up", "down-to", "status"}, commands)
}

func TestCommandLineImport(t *testing.T) {
	f := setup(t)
	original := openFileFunc
	t.Cleanup(func() { openFileFunc = original })

	openFileFunc = func(name string) (io.ReadCloser, error) {
		if name != "students.csv" {
			return nil, fmt.Errorf("open %s: no such file or directory", name)
		}
		return io.NopCloser(strings.NewReader("email,first_name,last_name\n")), nil
	}

	runCases(t, f.cli, []cliTest{
		{name: "missing flags", args: []string{"import", "-kind", "students"}, wantErr: errHelp},
		{name: "missing file", args: []string{"import", "-kind", "students", "-file", "nope.csv"}, wantErrStr: "open nope.csv: no such file or directory"},
		{name: "ok", args: []string{"import", "-kind", "Students", "-file", "students.csv", "-temp-password", "Welcome2024!"}},
	})

	assert.Equal(t, service.ImportStudents, f.importer.kind)
	assert.Equal(t, "Welcome2024!", f.importer.password)
	assert.Contains(t, f.importer.body, "first_name")
	assert.Contains(t, f.out.String(), "students: created=2 skipped=1 failed=1")
	assert.Contains(t, f.out.String(), "line 4: course not found")
}

func TestCommandLineResetPassword(t *testing.T) {
	f := setup(t)
	original := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = original })

	password := ""
	readPasswordFunc = func(int) ([]byte, error) { return []byte(password), nil }

	runCases(t, f.cli, []cliTest{
		{name: "missing email", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "empty password", args: []string{"resetpassword", "-email", "ana@fasch.edu"}, wantErr: errHelp},
	})
	assert.Nil(t, f.resetter.req)

	password = "N3wPassword!"
	runCases(t, f.cli, []cliTest{
		{name: "ok", args: []string{"resetpassword", "-email", "ana@fasch.edu"}},
	})
	require.NotNil(t, f.resetter.req)
	assert.Equal(t, "ana@fasch.edu", f.resetter.req.Email)
	assert.Equal(t, "N3wPassword!", f.resetter.req.Password)
}

func TestCommandLineRecalculateAndTranscripts(t *testing.T) {
	f := setup(t)

	runCases(t, f.cli, []cliTest{
		{name: "recalculate without section", args: []string{"recalculate"}, wantErr: errHelp},
		{name: "recalculate failure", args: []string{"recalculate", "-section", "missing"}, wantErrStr: "section not found"},
		{name: "recalculate", args: []string{"recalculate", "-section", "sec-1"}},
		{name: "transcripts bad semester", args: []string{"transcripts", "-semester", "WINTER", "-year", "2024"}, wantErr: errHelp},
		{name: "transcripts without year", args: []string{"transcripts", "-semester", "fall"}, wantErr: errHelp},
		{name: "transcripts", args: []string{"transcripts", "-semester", "fall", "-year", "2024"}},
	})

	assert.Contains(t, f.out.String(), "updated=3 unchanged=5 failed=0")
	assert.Contains(t, f.out.String(), "transcripts written=7")
	assert.Equal(t, models.SemesterFall, f.transcripts.semester)
	assert.Equal(t, 2024, f.transcripts.year)
}

func TestCommandLineTranscriptsArchive(t *testing.T) {
	f := setup(t)
	dir := t.TempDir()

	err := f.cli.run([]string{"registrar-admin", "transcripts", "-semester", "FALL", "-year", "2024", "-export-dir", dir, "-format", "CSV"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "transcript_STU0001_fall_2024.csv"))
	require.NoError(t, err)
	assert.Equal(t, "archived", string(data))
}
