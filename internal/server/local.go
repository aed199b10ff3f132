package server

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magiconair/properties"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/procsup"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

const defaultRunUser = "sonarqube"

// platformSkipsReadyMarker reports platforms whose launcher never logs the
// readiness marker; there the status poll alone decides.
func platformSkipsReadyMarker() bool {
	return runtime.GOOS == "windows"
}

// localStartCommand builds the launch command of the bundled server. As root
// on Linux the server runs as an unprivileged user, since its search engine
// refuses to start as root.
func (l *Lifecycle) localStartCommand() (procsup.Command, error) {
	home := l.cfg.Sonar.ServerHome
	if home == "" {
		return procsup.Command{}, errs.NewConfigError(errs.PhaseServerStart, nil, "server home is not set (SONARQUBE_HOME)")
	}
	jdkBin := filepath.Join(l.cfg.Sonar.JDKHome, "bin")

	if runtime.GOOS == "windows" {
		script := fmt.Sprintf(`set PATH=%s;%%PATH%% && bin\windows-x86-64\StartSonar.bat`, jdkBin)
		return procsup.Command{Name: "cmd", Args: []string{"/C", script}, Dir: home}, nil
	}

	script := fmt.Sprintf("export PATH=%s:$PATH && ./bin/run.sh", jdkBin)
	if runtime.GOOS == "linux" && isRoot() {
		runUser, err := l.prepareRunUser(home)
		if err != nil {
			return procsup.Command{}, err
		}
		return procsup.Command{Name: "sudo", Args: []string{"-u", runUser, "bash", "-c", script}, Dir: home}, nil
	}
	return procsup.Command{Name: "bash", Args: []string{"-c", script}, Dir: home}, nil
}

func isRoot() bool {
	u, err := user.Current()
	return err == nil && u.Username == "root"
}

// prepareRunUser makes the server and JDK trees usable by the run user,
// creating the default user when none is configured.
func (l *Lifecycle) prepareRunUser(home string) (string, error) {
	ctx := context.Background()
	runUser := l.env.ServerRunUser
	sink := procsup.Sinks{Stdout: procsup.LogSink(l.logger), Stderr: procsup.LogSink(l.logger)}

	if runUser == "" {
		runUser = defaultRunUser
		// useradd fails when the user already exists
		_ = procsup.Run(ctx, procsup.Command{Name: "useradd", Args: []string{runUser}, Dir: home}, sink)
	}
	for _, dir := range []string{home, l.cfg.Sonar.JDKHome} {
		if dir == "" {
			continue
		}
		if err := procsup.Run(ctx, procsup.Command{Name: "chmod", Args: []string{"-R", "777", dir}, Dir: home}, sink); err != nil {
			l.logger.Warn("chmod failed", "dir", dir, "error", err)
		}
	}
	if err := chmodAncestors(home, 0o777); err != nil {
		l.logger.Warn("failed to open parent directories", "home", home, "error", err)
	}
	return runUser, nil
}

func chmodAncestors(path string, mode os.FileMode) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	for dir != "/" && dir != "." {
		if err := os.Chmod(dir, mode); err != nil {
			return err
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// propertiesPatch remembers how to undo the server parameters appended to
// conf/sonar.properties.
type propertiesPatch struct {
	path   string
	backup string
}

// applyServerParams appends key=value lines to conf/sonar.properties after
// saving a backup. An existing backup from an interrupted run is kept so
// the pristine file is what gets restored.
func applyServerParams(home string, params []string) (*propertiesPatch, error) {
	if _, err := properties.LoadString(strings.Join(params, "\n")); err != nil {
		return nil, errs.NewConfigError(errs.PhaseServerStart, err, "invalid server parameters")
	}

	patch := &propertiesPatch{
		path:   filepath.Join(home, "conf", "sonar.properties"),
		backup: filepath.Join(home, "conf", "sonar.properties.temp"),
	}
	if !files.Exists(patch.backup) {
		if err := files.CopyFile(patch.path, patch.backup); err != nil {
			return nil, errs.NewConfigError(errs.PhaseServerStart, err, "failed to back up server properties")
		}
	}
	lines := append([]string{""}, params...)
	if err := files.AppendLines(patch.path, lines); err != nil {
		return nil, errs.NewConfigError(errs.PhaseServerStart, err, "failed to apply server parameters")
	}
	return patch, nil
}

func (p *propertiesPatch) restore() error {
	if !files.Exists(p.backup) {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(p.backup, p.path)
}
