package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	ServiceLayer struct {
		BaseURL   string        `mapstructure:"base_url"`
		ODataURL  string        `mapstructure:"odata_url"`
		CompanyDB string        `mapstructure:"company_db"`
		UserName  string        `mapstructure:"user_name"`
		Password  string        `mapstructure:"password"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"service_layer"`

	Scanner struct {
		ThresholdMs int `mapstructure:"threshold_ms"`
	} `mapstructure:"scanner"`

	Transfer struct {
		// Almacenes a los que no se permite mover lotes bloqueados/denegados.
		RestrictedWarehouses []string `mapstructure:"restricted_warehouses"`
	} `mapstructure:"transfer"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":3001")
	v.SetDefault("service_layer.timeout", 30*time.Second)
	v.SetDefault("scanner.threshold_ms", 35)
	v.SetDefault("transfer.restricted_warehouses", []string{"18", "21"})

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
