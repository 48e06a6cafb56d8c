package model

type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ActivityMtime int64  `json:"activity_mtime"`
	Ctime         int64  `json:"ctime"`
	Mtime         int64  `json:"mtime"`
}
