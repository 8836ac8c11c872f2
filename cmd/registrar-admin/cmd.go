package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/service"
	"github.com/noah-isme/fasch-registrar-api/migrations"
	"github.com/noah-isme/fasch-registrar-api/pkg/storage"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = goose.RunContext  // mockable
	openFileFunc     = func(name string) (io.ReadCloser, error) { return os.Open(name) }

	errHelp = errors.New("help provided")
)

type importer interface {
	Import(ctx context.Context, kind service.ImportKind, reader io.Reader) (*service.ImportReport, error)
}

type passwordResetter interface {
	ResetPassword(ctx context.Context, req dto.ResetPasswordRequest, actorID string) error
}

type sectionRecalculator interface {
	RecalculateSection(ctx context.Context, sectionID string) (*service.RecalculateResult, error)
}

type transcriptGenerator interface {
	ArchiveAll(ctx context.Context, semester models.Semester, year int, format service.ExportFormat, sink service.TranscriptSink) (int, error)
}

type commandLine struct {
	db             *sql.DB
	migrationTable string
	importer       func(tempPassword string) importer
	users          passwordResetter
	grades         sectionRecalculator
	transcripts    transcriptGenerator
	out            io.Writer
	logger         *zap.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                 - run goose (up, down, status, version, redo, reset, up-to, down-to)")
	fmt.Fprintln(cli.out, "  import -kind KIND -file PATH [-temp-password PWD]       - load students, professors, courses, sections or enrollments from CSV")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                             - set a temporary password; it is prompted next")
	fmt.Fprintln(cli.out, "  recalculate -section SECTION_ID                        - recompute final grades of a section")
	fmt.Fprintln(cli.out, "  transcripts -semester SEMESTER -year YEAR [-export-dir DIR]  - regenerate every transcript of a term")
	fmt.Fprintln(cli.out, "              [-format pdf|csv] [-prune DURATION]         - archive options")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "import":
		cmd := flag.NewFlagSet("import", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		kind := cmd.String("kind", "", "Dataset: students, professors, courses, sections or enrollments.")
		file := cmd.String("file", "", "Path of the CSV file.")
		temp := cmd.String("temp-password", "", "Password given to imported accounts without one.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *kind == "" || *file == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.importFile(ctx, service.ImportKind(strings.ToLower(*kind)), *file, *temp)

	case "resetpassword":
		cmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cmd.Usage()
			return errHelp
		}
		return cli.users.ResetPassword(ctx, dto.ResetPasswordRequest{Email: *email, Password: string(pwd)}, "")

	case "recalculate":
		cmd := flag.NewFlagSet("recalculate", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		section := cmd.String("section", "", "Section id.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *section == "" {
			cmd.Usage()
			return errHelp
		}
		res, err := cli.grades.RecalculateSection(ctx, *section)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "updated=%d unchanged=%d failed=%d\n", res.Updated, res.Unchanged, len(res.Failed))
		return nil

	case "transcripts":
		cmd := flag.NewFlagSet("transcripts", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		semester := cmd.String("semester", "", "FALL, SPRING or SUMMER.")
		year := cmd.Int("year", 0, "Academic year.")
		exportDir := cmd.String("export-dir", "", "Also write each transcript into this directory.")
		format := cmd.String("format", string(service.ExportFormatPDF), "Archive format: pdf or csv.")
		prune := cmd.Duration("prune", 0, "Delete archived files older than this before writing.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		sem := models.Semester(strings.ToUpper(*semester))
		switch sem {
		case models.SemesterFall, models.SemesterSpring, models.SemesterSummer:
		default:
			cmd.Usage()
			return errHelp
		}
		if *year <= 0 {
			cmd.Usage()
			return errHelp
		}
		var sink service.TranscriptSink
		if *exportDir != "" {
			store, err := storage.NewLocalStorage(*exportDir)
			if err != nil {
				return err
			}
			if *prune > 0 {
				deleted, err := store.CleanupOlderThan(*prune)
				if err != nil {
					return err
				}
				cli.logger.Info("archive pruned", zap.Int("deleted", len(deleted)))
			}
			sink = store
		}
		written, err := cli.transcripts.ArchiveAll(ctx, sem, *year, service.ExportFormat(strings.ToLower(*format)), sink)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "transcripts written=%d\n", written)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	goose.SetBaseFS(migrations.FS)
	if cli.migrationTable != "" {
		goose.SetTableName(cli.migrationTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseRunFunc(ctx, args[0], cli.db, ".", args[1:]...); err != nil {
		return err
	}
	cli.logger.Info("migration command finished", zap.String("command", args[0]))
	return nil
}

func (cli *commandLine) importFile(ctx context.Context, kind service.ImportKind, path, tempPassword string) error {
	f, err := openFileFunc(path)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := cli.importer(tempPassword).Import(ctx, kind, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: created=%d skipped=%d failed=%d\n", report.Kind, report.Created, report.Skipped, len(report.Failures))
	for _, failure := range report.Failures {
		fmt.Fprintf(cli.out, "  line %d: %s\n", failure.Line, failure.Reason)
	}
	return nil
}
