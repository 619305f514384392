package di

import (
	"go.uber.org/dig"
)

// Container 全局依赖注入容器
var Container *dig.Container

// InitContainer 初始化依赖注入容器并注册所有Provider
func InitContainer() error {
	Container = dig.New()
	return RegisterProviders(Container)
}

// GetContainer 获取全局容器实例
func GetContainer() *dig.Container {
	return Container
}

// Invoke 在全局容器上执行函数
func Invoke(function interface{}) error {
	return Container.Invoke(function)
}

// Provide 向全局容器注册Provider
func Provide(constructor interface{}) error {
	return Container.Provide(constructor)
}
