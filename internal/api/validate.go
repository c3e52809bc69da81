package api

import (
	"errors"
	"reflect"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/payout-engine/internal/ledger"
)

// RegisterValidators 注册自定义校验：ledger_address 与 minor_units
func RegisterValidators(codec ledger.AddressCodec) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	if codec == nil {
		codec = ledger.RawCodec{}
	}
	if err := v.RegisterValidation("ledger_address", func(fl validator.FieldLevel) bool {
		_, err := codec.Normalize(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	// decimal 按字符串形式参与校验
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	// 只校验是整数写法，正负由业务层判定以返回统一的金额错误
	return v.RegisterValidation("minor_units", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsInteger()
	})
}
