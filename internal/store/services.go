package store

import (
	"database/sql"
	"fmt"
)

const serviceCols = `id, service_name, environment, host, port, username, password,
	server_base_path, jar_path, classes_path, jar_decompile_output_dir,
	class_decompile_output_dir, description, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (*Service, error) {
	var svc Service
	var created, updated string
	err := row.Scan(&svc.ID, &svc.ServiceName, &svc.Environment, &svc.Host, &svc.Port,
		&svc.Username, &svc.Password, &svc.ServerBasePath, &svc.JarPath, &svc.ClassesPath,
		&svc.JarDecompileOutputDir, &svc.ClassDecompileOutputDir, &svc.Description,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	svc.CreatedAt = parseTime(created)
	svc.UpdatedAt = parseTime(updated)
	return &svc, nil
}

// UpsertService inserts svc or updates the existing row with the same
// (service_name, environment). It reports whether a new row was created
// and fills in svc.ID.
func (s *Store) UpsertService(svc *Service) (created bool, err error) {
	existing, err := s.GetServiceByName(svc.ServiceName, svc.Environment)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("look up service %s/%s: %w", svc.ServiceName, svc.Environment, err)
	}

	ts := fmtTime(now())
	if existing != nil {
		_, err = s.db.Exec(`UPDATE services SET host=?, port=?, username=?, password=?,
			server_base_path=?, jar_path=?, classes_path=?, jar_decompile_output_dir=?,
			class_decompile_output_dir=?, description=?, updated_at=?
			WHERE id=?`,
			svc.Host, svc.Port, svc.Username, svc.Password, svc.ServerBasePath,
			svc.JarPath, svc.ClassesPath, svc.JarDecompileOutputDir,
			svc.ClassDecompileOutputDir, svc.Description, ts, existing.ID)
		if err != nil {
			return false, fmt.Errorf("update service %s: %w", svc.ServiceName, err)
		}
		svc.ID = existing.ID
		return false, nil
	}

	res, err := s.db.Exec(`INSERT INTO services (service_name, environment, host, port,
		username, password, server_base_path, jar_path, classes_path,
		jar_decompile_output_dir, class_decompile_output_dir, description,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ServiceName, svc.Environment, svc.Host, svc.Port, svc.Username, svc.Password,
		svc.ServerBasePath, svc.JarPath, svc.ClassesPath, svc.JarDecompileOutputDir,
		svc.ClassDecompileOutputDir, svc.Description, ts, ts)
	if err != nil {
		return false, fmt.Errorf("insert service %s: %w", svc.ServiceName, err)
	}
	svc.ID, err = res.LastInsertId()
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetService fetches a service by id.
func (s *Store) GetService(id int64) (*Service, error) {
	row := s.db.QueryRow(`SELECT `+serviceCols+` FROM services WHERE id = ?`, id)
	return scanService(row)
}

// GetServiceByName fetches the service with the given name and environment.
// Returns sql.ErrNoRows when absent.
func (s *Store) GetServiceByName(name, environment string) (*Service, error) {
	row := s.db.QueryRow(`SELECT `+serviceCols+` FROM services
		WHERE service_name = ? AND environment = ?`, name, environment)
	return scanService(row)
}

// ListServices returns all services ordered by name then environment.
func (s *Store) ListServices() ([]*Service, error) {
	rows, err := s.db.Query(`SELECT ` + serviceCols + ` FROM services
		ORDER BY service_name, environment`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// ListServicesByEnvironment returns all services in one environment.
func (s *Store) ListServicesByEnvironment(environment string) ([]*Service, error) {
	rows, err := s.db.Query(`SELECT `+serviceCols+` FROM services
		WHERE environment = ? ORDER BY service_name`, environment)
	if err != nil {
		return nil, fmt.Errorf("list services for %s: %w", environment, err)
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}
