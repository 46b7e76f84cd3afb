package database

import "go.mongodb.org/mongo-driver/mongo"

// Table 由持久化模型实现，返回其集合/表名
type Table interface {
	GetTableName() string
}

func Collection(db *mongo.Database, t Table) *mongo.Collection {
	return db.Collection(t.GetTableName())
}
