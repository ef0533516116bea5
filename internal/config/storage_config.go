package config

import "path/filepath"

const (
	StorageDriverSQLite = "sqlite"
	StorageDriverMemory = "memory"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetDataFolder() string
	GetDatabaseFile() string
}

type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	DataFolder string `yaml:"data_folder" env:"FOLDER" env-default:"./data"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageDriver() string {
	return orDefault(s.Driver, StorageDriverSQLite)
}

func (s Storage) GetDataFolder() string {
	return orDefault(s.DataFolder, "./data")
}

func (s Storage) GetDatabaseFile() string {
	return filepath.Join(s.GetDataFolder(), "session.db")
}
