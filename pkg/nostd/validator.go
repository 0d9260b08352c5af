package nostd

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// CustomValidator 结构体标签校验，错误信息翻译为可读文本
type CustomValidator struct {
	Validator *validator.Validate
	trans     ut.Translator
}

// NewValidator 创建并初始化翻译
func NewValidator() (*CustomValidator, error) {
	v := &CustomValidator{Validator: validator.New()}
	if err := v.TransInit(); err != nil {
		return nil, err
	}
	return v, nil
}

// TransInit 注册英文翻译，字段名取 json 标签
func (cv *CustomValidator) TransInit() error {
	cv.Validator.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return errors.New("translator en not found")
	}
	if err := entranslations.RegisterDefaultTranslations(cv.Validator, trans); err != nil {
		return err
	}
	cv.trans = trans
	return nil
}

// Validate 实现 echo.Validator
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.Validator.Struct(i)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || cv.trans == nil {
		return err
	}

	translated := validationErrors.Translate(cv.trans)
	keys := make([]string, 0, len(translated))
	for k := range translated {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, translated[k])
	}
	return errors.New(strings.Join(messages, "; "))
}
