// Package profile 聚合各发行版包管理器的镜像布局知识，并提供统一的注册入口。
//
// 每个 Profile 声明该生态中“值得落盘”的路径后缀（包体、仓库数据库、签名、文件清单），
// 供缓存策略在未显式配置 CacheableSuffixes 时作为默认值使用。
package profile
