package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ProviderLocator           = (*ProviderRegistry)(nil)
	_ ConnectionFactory         = StaticConnectionFactory{}
	_ Connection                = (*DataConnection)(nil)
	_ ConnectionInterceptor     = InterceptorFuncs{}
	_ ConnectionSignUp          = ConnectionSignUpFunc(nil)
	_ ConnectionRepository      = (*Repository)(nil)
	_ UsersConnectionRepository = (*Service)(nil)
	_ LocatorSource             = (*Service)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
