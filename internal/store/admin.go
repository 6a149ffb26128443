package store

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

// AttachAdminRoutes mounts the tsweb debug index under /debug/ with a
// live tailsql console over the archive.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return err
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Trajectory archive",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("migrations", "Schema migration version", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version, dirty, err := s.MigrateVersion()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		monitoring.Debugf("admin: migration version %d dirty=%v", version, dirty)
		_, _ = w.Write([]byte(migrationStatus(version, dirty)))
	}))
	return nil
}

func migrationStatus(version uint, dirty bool) string {
	status := "clean"
	if dirty {
		status = "dirty"
	}
	return fmt.Sprintf("version %d (%s)\n", version, status)
}
