// Package config handles loading and validating the IR fan bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GRAYLOGIC_*)
//   - Validation of required fields, including every fan entry
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, JWT secret, InfluxDB token, HomeKit PIN)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, f := range cfg.Fans {
//	    fmt.Println(f.ID, f.DeviceCode, f.DelayDuration())
//	}
package config
