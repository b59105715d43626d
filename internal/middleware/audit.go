package middleware

import (
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// RegisterAuditCallbacks 写入时按请求中的登录账号填充 CreatedBy/UpdatedBy；
// 定时任务和匿名请求不带 Principal，字段保持 0
func RegisterAuditCallbacks(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").
		Register("purin:audit_create", stampCreate); err != nil {
		return fmt.Errorf("register audit create: %w", err)
	}
	if err := db.Callback().Update().Before("gorm:update").
		Register("purin:audit_update", stampUpdate); err != nil {
		return fmt.Errorf("register audit update: %w", err)
	}
	return nil
}

func actorID(tx *gorm.DB) int64 {
	if tx.Statement.Context == nil || tx.Statement.Schema == nil {
		return 0
	}
	if p := PrincipalFrom(tx.Statement.Context); p != nil {
		return p.ProfileID
	}
	return 0
}

func stampCreate(tx *gorm.DB) {
	id := actorID(tx)
	if id == 0 {
		return
	}
	for _, name := range []string{"CreatedBy", "UpdatedBy"} {
		if field := tx.Statement.Schema.LookUpField(name); field != nil {
			fillZero(tx, field, id)
		}
	}
}

// stampUpdate Updates(map) 时同样写入 map
func stampUpdate(tx *gorm.DB) {
	id := actorID(tx)
	if id == 0 {
		return
	}
	if tx.Statement.Schema.LookUpField("UpdatedBy") != nil {
		tx.Statement.SetColumn("UpdatedBy", id, true)
	}
}

// fillZero 已有值的记录不覆盖，批量插入逐条处理
func fillZero(tx *gorm.DB, field *schema.Field, id int64) {
	ctx := tx.Statement.Context
	rv := reflect.Indirect(tx.Statement.ReflectValue)
	set := func(v reflect.Value) {
		if _, zero := field.ValueOf(ctx, v); zero {
			_ = field.Set(ctx, v, id)
		}
	}
	switch rv.Kind() {
	case reflect.Struct:
		set(rv)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			set(reflect.Indirect(rv.Index(i)))
		}
	}
}
