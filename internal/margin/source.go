package margin

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"execcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadParametersCSV reads one row per asset: asset, initial weight, total
// weight, imf factor. A header row is skipped. An empty path yields an empty
// set.
func LoadParametersCSV(path string) (*Parameters, error) {
	if path == "" {
		logs.Info("no collateral parameter file, per asset collateral disabled")
		return NewParameters(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open collateral parameter file").With("path", path)
	}
	defer f.Close()

	params, err := ReadParametersCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, "read collateral parameter file").With("path", path)
	}

	logs.Infof("loaded %d collateral parameters from %s", params.Len(), path)
	return params, nil
}

// ReadParametersCSV parses parameter rows from r.
func ReadParametersCSV(r io.Reader) (*Parameters, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	params := make([]CollateralParameter, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "asset") {
			continue
		}

		p, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrap(err, "parse row").With("line", i+1)
		}
		params = append(params, p)
	}

	return NewParameters(params...), nil
}

func parseRow(row []string) (CollateralParameter, error) {
	asset := strings.TrimSpace(row[0])
	if asset == "" {
		return CollateralParameter{}, exception.ErrMarginInvalidRow
	}

	values := make([]decimal.Decimal, 3)
	for i := range values {
		v, err := decimal.NewFromString(strings.TrimSpace(row[i+1]))
		if err != nil {
			return CollateralParameter{}, errors.Wrap(exception.ErrMarginInvalidRow, err.Error()).With("asset", asset)
		}
		values[i] = v
	}

	return CollateralParameter{
		Asset:         asset,
		InitialWeight: values[0],
		TotalWeight:   values[1],
		IMFFactor:     values[2],
	}, nil
}

// parameterRow is the collateral_parameters table. Weights are stored as
// decimal text so they read back exactly.
type parameterRow struct {
	Asset         string `gorm:"column:asset;primaryKey"`
	InitialWeight string `gorm:"column:initial_weight;type:text"`
	TotalWeight   string `gorm:"column:total_weight;type:text"`
	IMFFactor     string `gorm:"column:imf_factor;type:text"`
}

func (parameterRow) TableName() string {
	return "collateral_parameters"
}

// MigrateParametersDB creates the collateral_parameters table.
func MigrateParametersDB(db *gorm.DB) error {
	return db.AutoMigrate(&parameterRow{})
}

// LoadParametersDB reads every row of the collateral_parameters table.
func LoadParametersDB(db *gorm.DB) (*Parameters, error) {
	var rows []parameterRow
	if err := db.Order("asset").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query collateral parameters")
	}

	params := make([]CollateralParameter, 0, len(rows))
	for _, row := range rows {
		p, err := parseRow([]string{row.Asset, row.InitialWeight, row.TotalWeight, row.IMFFactor})
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}

	logs.Infof("loaded %d collateral parameters from database", len(params))
	return NewParameters(params...), nil
}

// SaveParametersDB upserts every parameter of params.
func SaveParametersDB(db *gorm.DB, params *Parameters) error {
	all := params.All()
	if len(all) == 0 {
		return nil
	}

	rows := make([]parameterRow, 0, len(all))
	for _, p := range all {
		rows = append(rows, parameterRow{
			Asset:         p.Asset,
			InitialWeight: p.InitialWeight.String(),
			TotalWeight:   p.TotalWeight.String(),
			IMFFactor:     p.IMFFactor.String(),
		})
	}

	err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return errors.Wrap(err, "save collateral parameters")
	}
	return nil
}
