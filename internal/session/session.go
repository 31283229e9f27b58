// Package session mantiene la sesión del Service Layer como un objeto
// explícito que se inyecta en cada componente, en lugar de estado global.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Nestorcanpac/pda-app/internal/sap"
)

// Gate es lo único que necesitan los componentes que consultan o mueven
// stock: saber si hay sesión y poder pedir un refresco silencioso.
type Gate interface {
	Valid() bool
	Refresh(ctx context.Context) bool
}

// Loginer abstrae al cliente del Service Layer para poder probar el
// manager sin red.
type Loginer interface {
	Login(ctx context.Context, userName, password string) (sap.SessionInfo, error)
	Logout(ctx context.Context)
	SessionID() string
}

type Info struct {
	HasSession bool      `json:"hasSession"`
	UserName   string    `json:"userName,omitempty"`
	CompanyDB  string    `json:"companyDB,omitempty"`
	LoggedAt   time.Time `json:"loggedAt,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// Manager implementa Gate sobre el login del Service Layer. Guarda las
// credenciales del último login correcto para el refresco silencioso.
type Manager struct {
	client    Loginer
	log       *slog.Logger
	companyDB string

	mu        sync.RWMutex
	userName  string
	password  string
	loggedAt  time.Time
	expiresAt time.Time
}

func NewManager(client Loginer, companyDB string, log *slog.Logger) *Manager {
	return &Manager{client: client, companyDB: companyDB, log: log}
}

// Login abre sesión y memoriza las credenciales para refrescos posteriores.
func (m *Manager) Login(ctx context.Context, userName, password string) error {
	info, err := m.client.Login(ctx, userName, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.userName = userName
	m.password = password
	m.loggedAt = time.Now()
	m.expiresAt = expiry(m.loggedAt, info.SessionTimeout)
	m.mu.Unlock()
	return nil
}

func expiry(from time.Time, timeoutMinutes int) time.Time {
	if timeoutMinutes <= 0 {
		// El Service Layer usa 30 minutos si no dice otra cosa.
		timeoutMinutes = 30
	}
	// Margen de un minuto para no usar una sesión al borde de caducar.
	return from.Add(time.Duration(timeoutMinutes-1) * time.Minute)
}

func (m *Manager) Valid() bool {
	if m.client.SessionID() == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().Before(m.expiresAt)
}

// Refresh intenta un re-login silencioso con las últimas credenciales.
// Devuelve si ahora existe sesión.
func (m *Manager) Refresh(ctx context.Context) bool {
	if m.Valid() {
		return true
	}

	m.mu.RLock()
	user, pass := m.userName, m.password
	m.mu.RUnlock()
	if user == "" {
		return false
	}

	if err := m.Login(ctx, user, pass); err != nil {
		m.log.Warn("silent session refresh failed", "user", user, "err", err)
		return false
	}
	m.log.Debug("session refreshed", "user", user)
	return true
}

// Clear cierra la sesión y olvida las credenciales.
func (m *Manager) Clear(ctx context.Context) {
	m.client.Logout(ctx)
	m.mu.Lock()
	m.userName = ""
	m.password = ""
	m.loggedAt = time.Time{}
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

// Current describe la sesión actual para la pantalla de login.
func (m *Manager) Current() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client.SessionID() == "" || !time.Now().Before(m.expiresAt) {
		return Info{HasSession: false}
	}
	return Info{
		HasSession: true,
		UserName:   m.userName,
		CompanyDB:  m.companyDB,
		LoggedAt:   m.loggedAt,
		ExpiresAt:  m.expiresAt,
	}
}
