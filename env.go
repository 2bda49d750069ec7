package dbpool

import "os"

// this just defines some environment variables that are used in the tests
const (
	EnvTestMySQLDSN     = "DBPOOL_TEST_MYSQL_DSN"
	EnvTestStressFactor = "DBPOOL_TEST_STRESS_FACTOR"
)

func IsTestingWithMySQL() bool {
	return os.Getenv(EnvTestMySQLDSN) != ""
}
